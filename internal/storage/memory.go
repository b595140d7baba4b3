package storage

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

// MemoryStore is an in-memory implementation of drop.BlobStore.
// It is safe for concurrent use and mostly useful for testing.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Put(accountID string, bucket model.Bucket, name string, r io.Reader, size int64) (string, error) {
	location, err := blobLocation(accountID, bucket, name)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[location] = data
	return location, nil
}

func (m *MemoryStore) Open(location string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[location]
	if !ok {
		return nil, fmt.Errorf("%w: no blob at %s", drop.ErrNotFound, location)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) Remove(location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, location)
	return nil
}

// Bytes returns a copy of the blob at location and whether it exists.
func (m *MemoryStore) Bytes(location string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[location]
	return bytes.Clone(data), ok
}

// Set replaces the blob at location, creating it if needed.
func (m *MemoryStore) Set(location string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[location] = bytes.Clone(data)
}

// Locations returns every stored location in sorted order.
func (m *MemoryStore) Locations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.blobs))
	for loc := range m.blobs {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryStore implements drop.BlobStore interface
var _ drop.BlobStore = (*MemoryStore)(nil)
