package database

import (
	"fmt"
	"os"
	"path/filepath"

	"darkdrop/internal/config"
	"darkdrop/internal/database/migrations"
)

// DatabaseFile is the name of the SQLite file inside data_dir.
const DatabaseFile = "darkdrop.db"

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		path, err := PathFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLiteDatabase(path)
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// PathFromConfig returns the database file path for a sqlite config,
// creating data_dir if needed.
func PathFromConfig(cfg config.DatabaseConfig) (string, error) {
	if cfg.Type != "sqlite" {
		return "", fmt.Errorf("database type %q has no file", cfg.Type)
	}
	if cfg.DataDir == "" {
		return "", fmt.Errorf("data_dir required for sqlite database")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	return filepath.Join(cfg.DataDir, DatabaseFile), nil
}

// MigrateFromConfig brings the configured sqlite database to the latest schema.
func MigrateFromConfig(cfg config.DatabaseConfig) error {
	path, err := PathFromConfig(cfg)
	if err != nil {
		return err
	}
	db, err := OpenConnection(path)
	if err != nil {
		return err
	}
	defer db.Close()

	return migrations.MigrateUp(db)
}
