package testutil

import (
	"darkdrop/internal/storage"
)

// NewTestBlobStore creates a new in-memory blob store for testing.
func NewTestBlobStore() *storage.MemoryStore {
	return storage.NewMemoryStore()
}
