package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for darkdrop.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sessions   SessionConfig    `toml:"sessions"`
	Backup     BackupConfig     `toml:"backup"`
	Vaults     []VaultConfig    `toml:"vaults"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Listen        string `toml:"listen"`
	PublicBaseURL string `toml:"public_base_url"`
	// MaxUploadSize in bytes; 0 uses the built-in default, negative disables the limit.
	MaxUploadSize   int64    `toml:"max_upload_size"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// StorageConfig represents configuration for the blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds the master secret for encryption at rest.
// The DARKDROP_MASTER_KEY environment variable overrides MasterKey.
type EncryptionConfig struct {
	MasterKey     string `toml:"master_key,omitempty"` // hex encoded
	KDFIterations int    `toml:"kdf_iterations,omitempty"`
}

// SessionConfig controls login sessions.
type SessionConfig struct {
	TTL           Duration `toml:"ttl"`
	SweepInterval Duration `toml:"sweep_interval"`
}

// BackupConfig holds the age key pair used to seal database snapshots.
type BackupConfig struct {
	RecipientPath string `toml:"recipient_path"`
	IdentityPath  string `toml:"identity_path"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// Duration is a time.Duration written as a string such as "1h30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Server: ServerConfig{
			Listen:          "127.0.0.1:3000",
			PublicBaseURL:   "http://localhost:3000",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Storage:  StorageConfig{Type: "filesystem", Root: filepath.Join(baseDir, "storage")},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Sessions: SessionConfig{
			TTL:           Duration{7 * 24 * time.Hour},
			SweepInterval: Duration{time.Hour},
		},
		Backup: BackupConfig{
			RecipientPath: filepath.Join(baseDir, "keys", "backup.pub"),
			IdentityPath:  filepath.Join(baseDir, "keys", "backup.key"),
		},
	}
}

// Validate checks the fields a running server depends on.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root required for filesystem storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database.data_dir required for sqlite database")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}

	if c.Encryption.MasterKey != "" {
		key, err := hex.DecodeString(c.Encryption.MasterKey)
		if err != nil {
			return fmt.Errorf("encryption.master_key must be hex: %w", err)
		}
		if len(key) < 16 {
			return fmt.Errorf("encryption.master_key must be at least 16 bytes, got %d", len(key))
		}
	}
	if c.Encryption.KDFIterations < 0 {
		return fmt.Errorf("encryption.kdf_iterations must not be negative")
	}

	names := make(map[string]bool)
	for _, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vault name required")
		}
		if names[v.Name] {
			return fmt.Errorf("duplicate vault name: %q", v.Name)
		}
		names[v.Name] = true
	}
	return nil
}

// Vault returns the named vault config, or the first one if name is empty.
func (c *Config) Vault(name string) (VaultConfig, error) {
	if len(c.Vaults) == 0 {
		return VaultConfig{}, fmt.Errorf("no vaults configured")
	}
	if name == "" {
		return c.Vaults[0], nil
	}
	for _, v := range c.Vaults {
		if v.Name == name {
			return v, nil
		}
	}
	return VaultConfig{}, fmt.Errorf("vault not found: %q", name)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The config may hold the master key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
