package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/var/lib/darkdrop",
		LogDir:   "/var/lib/darkdrop/log",
		LogLevel: "debug",
		Server: ServerConfig{
			Listen:          ":8080",
			PublicBaseURL:   "https://drop.example.com",
			MaxUploadSize:   1 << 20,
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Storage:    StorageConfig{Type: "filesystem", Root: "/srv/darkdrop"},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/var/lib/darkdrop/db"},
		Encryption: EncryptionConfig{MasterKey: "00112233445566778899aabbccddeeff", KDFIterations: 1000},
		Sessions:   SessionConfig{TTL: Duration{48 * time.Hour}, SweepInterval: Duration{15 * time.Minute}},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
			{Type: "s3", Name: "offsite", S3Bucket: "snapshots", S3Region: "eu-west-1"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `ttl = "48h0m0s"`) {
		t.Errorf("durations should be written as strings, got:\n%s", buf.String())
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.Server != original.Server {
		t.Errorf("Server = %+v, want %+v", got.Server, original.Server)
	}
	if got.Storage != original.Storage {
		t.Errorf("Storage = %+v, want %+v", got.Storage, original.Storage)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Sessions.TTL.Duration != 48*time.Hour {
		t.Errorf("Sessions.TTL = %v, want 48h", got.Sessions.TTL)
	}
	if got.Sessions.SweepInterval.Duration != 15*time.Minute {
		t.Errorf("Sessions.SweepInterval = %v, want 15m", got.Sessions.SweepInterval)
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[1].S3Bucket != "snapshots" {
		t.Errorf("Vault[1].S3Bucket = %q, want %q", got.Vaults[1].S3Bucket, "snapshots")
	}
}

func TestManager_Read_InvalidDuration(t *testing.T) {
	m := &Manager{}
	_, err := m.Read(strings.NewReader("[sessions]\nttl = \"a week\"\n"))
	if err == nil {
		t.Fatal("Read() expected error for invalid duration")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/darkdrop")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"BaseDir", cfg.BaseDir, "/data/darkdrop"},
		{"LogDir", cfg.LogDir, "/data/darkdrop/log"},
		{"Storage.Root", cfg.Storage.Root, "/data/darkdrop/storage"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/darkdrop/db"},
		{"Backup.RecipientPath", cfg.Backup.RecipientPath, "/data/darkdrop/keys/backup.pub"},
		{"Backup.IdentityPath", cfg.Backup.IdentityPath, "/data/darkdrop/keys/backup.key"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if cfg.Sessions.TTL.Duration != 7*24*time.Hour {
		t.Errorf("Sessions.TTL = %v, want 168h", cfg.Sessions.TTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory everything", func(c *Config) {
			c.Storage = StorageConfig{Type: "memory"}
			c.Database = DatabaseConfig{Type: "memory"}
		}, false},
		{"unknown storage", func(c *Config) { c.Storage.Type = "tape" }, true},
		{"filesystem storage without root", func(c *Config) { c.Storage.Root = "" }, true},
		{"sqlite without data dir", func(c *Config) { c.Database.DataDir = "" }, true},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, true},
		{"master key not hex", func(c *Config) { c.Encryption.MasterKey = "not-hex" }, true},
		{"master key too short", func(c *Config) { c.Encryption.MasterKey = "abcd" }, true},
		{"negative iterations", func(c *Config) { c.Encryption.KDFIterations = -1 }, true},
		{"duplicate vault names", func(c *Config) {
			c.Vaults = []VaultConfig{{Type: "memory", Name: "a"}, {Type: "memory", Name: "a"}}
		}, true},
		{"unnamed vault", func(c *Config) { c.Vaults = []VaultConfig{{Type: "memory"}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Vault(t *testing.T) {
	cfg := NewConfig("/data")
	if _, err := cfg.Vault(""); err == nil {
		t.Error("Vault() expected error with no vaults configured")
	}

	cfg.Vaults = []VaultConfig{{Type: "memory", Name: "first"}, {Type: "memory", Name: "second"}}
	v, err := cfg.Vault("")
	if err != nil || v.Name != "first" {
		t.Errorf("Vault(\"\") = %q, %v; want first", v.Name, err)
	}
	v, err = cfg.Vault("second")
	if err != nil || v.Name != "second" {
		t.Errorf("Vault(\"second\") = %q, %v; want second", v.Name, err)
	}
	if _, err := cfg.Vault("third"); err == nil {
		t.Error("Vault(\"third\") expected error")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "darkdrop.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "darkdrop.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "darkdrop.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/darkdrop.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
