package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

// FileSystemStore keeps file bytes on the local disk:
//
//	<root>/
//	  <accountID>/
//	    users/ | agents/ | shared/
//	      <stored name>
//
// Locations are slash-separated paths relative to root, so the database
// keeps working if the storage root moves.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a store rooted at the given directory.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileSystemStore{root: abs}, nil
}

// Root returns the absolute storage root.
func (s *FileSystemStore) Root() string {
	return s.root
}

// Put writes r to <root>/<accountID>/<bucket>/<name>. A negative size skips
// the length check.
func (s *FileSystemStore) Put(accountID string, bucket model.Bucket, name string, r io.Reader, size int64) (string, error) {
	location, err := blobLocation(accountID, bucket, name)
	if err != nil {
		return "", err
	}
	destPath := s.resolve(location)
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return "", fmt.Errorf("creating bucket directory: %w", err)
	}
	if err := writeFile(destPath, r, size); err != nil {
		return "", err
	}
	return location, nil
}

// Open returns the bytes stored at location.
func (s *FileSystemStore) Open(location string) (io.ReadCloser, error) {
	p, err := s.confine(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no blob at %s", drop.ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Remove deletes the bytes at location.
func (s *FileSystemStore) Remove(location string) error {
	p, err := s.confine(location)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the storage root is an accessible directory.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", s.root)
	}
	return nil
}

func (s *FileSystemStore) resolve(location string) string {
	return filepath.Join(s.root, filepath.FromSlash(location))
}

// confine maps a recorded location to a path, refusing anything that would
// escape the storage root.
func (s *FileSystemStore) confine(location string) (string, error) {
	clean := path.Clean("/" + location)
	if location == "" || clean == "/" || clean[1:] != location {
		return "", fmt.Errorf("%w: invalid blob location %q", drop.ErrValidation, location)
	}
	return s.resolve(location), nil
}

// blobLocation builds the relative location for a blob, rejecting segments
// that are empty or contain separators.
func blobLocation(accountID string, bucket model.Bucket, name string) (string, error) {
	for _, seg := range []string{accountID, string(bucket), name} {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) || strings.ContainsRune(seg, 0) {
			return "", fmt.Errorf("%w: invalid blob path segment %q", drop.ErrValidation, seg)
		}
	}
	return path.Join(accountID, string(bucket), name), nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements drop.BlobStore interface
var _ drop.BlobStore = (*FileSystemStore)(nil)
