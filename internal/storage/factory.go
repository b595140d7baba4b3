package storage

import (
	"fmt"

	"darkdrop/internal/config"
	"darkdrop/internal/drop"
)

// Store is a BlobStore that can check its own setup.
type Store interface {
	drop.BlobStore
	ValidateSetup() error
}

// NewStoreFromConfig creates a blob store based on the storage config type.
func NewStoreFromConfig(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem storage requires root to be set")
		}
		s, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
