package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"darkdrop/internal/config"
	"darkdrop/internal/database"
	"darkdrop/internal/drop"
	"darkdrop/internal/encryption"
	"darkdrop/internal/storage"
	"darkdrop/internal/vault"
)

// DarkDropApp is the application layer between the outer surfaces (CLI,
// HTTP API, tool server) and DropService. It constructs all dependencies
// from config and manages their lifecycle on Close.
type DarkDropApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	blobs   storage.Store
	keys    *encryption.KeyRing
	service *drop.DropService
	logger  *slog.Logger
	logFile *os.File
	vaults  map[string]vault.Vault
	now     func() time.Time
}

// NewDarkDropApp creates a fully wired DarkDropApp from the given config.
// component identifies the running command in every log line
// (e.g. "serve", "mcp", "account").
// The caller must call Close when done.
func NewDarkDropApp(cfg *config.Config, component string) (*DarkDropApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, component, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	blobs, err := storage.NewStoreFromConfig(cfg.Storage)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blobs.ValidateSetup(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("checking blob store: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	keys, err := encryption.NewKeyRingFromConfig(cfg.Encryption, adapter)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating key ring: %w", err)
	}

	svc := drop.NewDropService(db, blobs, keys, adapter, drop.RealClock{}, drop.UUIDGenerator{}, drop.Options{
		PublicBaseURL: cfg.Server.PublicBaseURL,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		SessionTTL:    cfg.Sessions.TTL.Duration,
	})

	return &DarkDropApp{
		cfg:     cfg,
		db:      db,
		blobs:   blobs,
		keys:    keys,
		service: svc,
		logger:  logger,
		logFile: logFile,
		vaults:  make(map[string]vault.Vault),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config returns the configuration the app was built from.
func (a *DarkDropApp) Config() *config.Config { return a.cfg }

// Service returns the wired DropService.
func (a *DarkDropApp) Service() *drop.DropService { return a.service }

// Logger returns the app logger in the form the service layer expects.
func (a *DarkDropApp) Logger() drop.Logger { return &slogAdapter{l: a.logger} }

// SlogLogger returns the underlying structured logger.
func (a *DarkDropApp) SlogLogger() *slog.Logger { return a.logger }

// EncryptionAvailable reports whether a master key was configured.
func (a *DarkDropApp) EncryptionAvailable() bool { return a.keys.Available() }

// NewSessionSweeper returns a sweeper using the configured interval.
func (a *DarkDropApp) NewSessionSweeper() *drop.SessionSweeper {
	return drop.NewSessionSweeper(a.service, a.cfg.Sessions.SweepInterval.Duration, a.Logger())
}

// StartSessionSweeper runs a sweeper in its own goroutine until ctx is done.
// The returned wait blocks until it has stopped; call it before Close.
func (a *DarkDropApp) StartSessionSweeper(ctx context.Context) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.NewSessionSweeper().Run(ctx)
	}()
	return func() { <-done }
}

// Sealer returns the age sealer for database snapshots.
func (a *DarkDropApp) Sealer() *encryption.AgeSealer {
	return encryption.NewAgeSealer(a.cfg.Backup)
}

// vault returns the named vault (or the first configured one), building it
// on first use.
func (a *DarkDropApp) vault(ctx context.Context, name string) (vault.Vault, error) {
	vc, err := a.cfg.Vault(name)
	if err != nil {
		return nil, err
	}
	if v, ok := a.vaults[vc.Name]; ok {
		return v, nil
	}
	v, err := vault.NewVaultFromConfig(ctx, vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault %s: %w", vc.Name, err)
	}
	a.vaults[vc.Name] = v
	return v, nil
}

// BackupDatabase snapshots the metadata database, seals it with the backup
// recipient and uploads it to the vault. Returns the snapshot name.
func (a *DarkDropApp) BackupDatabase(ctx context.Context, vaultName string) (string, error) {
	sealer := a.Sealer()
	if !sealer.IsConfigured() {
		return "", fmt.Errorf("backup keys not found: run 'darkdrop backup keygen' first")
	}
	v, err := a.vault(ctx, vaultName)
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "darkdrop-backup-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir for db backup: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// Snapshot the DB to a temp file
	plainPath := filepath.Join(tmpDir, "snapshot.db")
	if err := a.db.BackupTo(ctx, plainPath); err != nil {
		return "", fmt.Errorf("backing up database: %w", err)
	}

	sealedPath := filepath.Join(tmpDir, "snapshot.db.age")
	if err := sealFile(sealer, plainPath, sealedPath); err != nil {
		return "", err
	}

	name := "darkdrop-" + a.now().Format("20060102T150405Z") + ".db.age"
	if err := uploadFile(ctx, v, name, sealedPath); err != nil {
		return "", err
	}

	a.logger.Info("database snapshot uploaded", "vault", v.Name(), "snapshot", name)
	return name, nil
}

// ListSnapshots returns the snapshot names stored in the vault.
func (a *DarkDropApp) ListSnapshots(ctx context.Context, vaultName string) ([]string, error) {
	v, err := a.vault(ctx, vaultName)
	if err != nil {
		return nil, err
	}
	return v.ListSnapshots(ctx)
}

// RestoreDatabase downloads a sealed snapshot, unlocks the backup identity
// with passphrase and writes the plaintext database to destPath, which must
// not exist. The running database is never touched.
func (a *DarkDropApp) RestoreDatabase(ctx context.Context, vaultName, snapshot, passphrase, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("restore destination already exists: %s", destPath)
	}
	v, err := a.vault(ctx, vaultName)
	if err != nil {
		return err
	}
	opener, err := a.Sealer().Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking backup identity: %w", err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(destPath), ".darkdrop-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for restore: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	sealedPath := filepath.Join(tmpDir, "snapshot.db.age")
	sealed, err := os.Create(sealedPath)
	if err != nil {
		return fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	if err := v.GetSnapshot(ctx, snapshot, sealed); err != nil {
		sealed.Close()
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}

	plainPath := filepath.Join(tmpDir, "snapshot.db")
	if err := openFile(opener, sealedPath, plainPath); err != nil {
		return err
	}
	if err := os.Rename(plainPath, destPath); err != nil {
		return fmt.Errorf("moving restored database into place: %w", err)
	}

	a.logger.Info("database snapshot restored", "vault", v.Name(), "snapshot", snapshot, "path", destPath)
	return nil
}

// Close closes the database and the log file.
func (a *DarkDropApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func sealFile(sealer *encryption.AgeSealer, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening db backup: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating sealed snapshot: %w", err)
	}
	if err := sealer.Seal(in, out); err != nil {
		out.Close()
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	return out.Close()
}

func openFile(opener *encryption.SnapshotOpener, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening sealed snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating restored database: %w", err)
	}
	if err := opener.Open(in, out); err != nil {
		out.Close()
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return out.Close()
}

// uploadFile opens the sealed snapshot and puts it in the vault.
func uploadFile(ctx context.Context, v vault.Vault, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if err := v.PutSnapshot(ctx, name, f, info.Size()); err != nil {
		return fmt.Errorf("uploading snapshot to vault: %w", err)
	}
	return nil
}
