package drop

import (
	"io"

	"darkdrop/internal/model"
)

// BlobStore holds the physical bytes of files.
// Locations returned by Put are opaque to callers and are recorded on the
// file row as its path.
type BlobStore interface {
	// Put stores size bytes read from r under the account and bucket, using
	// name as the leaf. Partial writes are never visible at the returned location.
	Put(accountID string, bucket model.Bucket, name string, r io.Reader, size int64) (location string, err error)

	// Open returns a reader over the bytes at location.
	// Returns an error wrapping ErrNotFound if nothing is stored there.
	Open(location string) (io.ReadCloser, error)

	// Remove deletes the bytes at location. A missing location is not an error.
	Remove(location string) error
}

// Encryptor performs encryption at rest for accounts that enable it.
type Encryptor interface {
	// AccountKey returns the 256-bit key for the account.
	// ok is false when no master secret is configured; callers store plaintext.
	AccountKey(accountID string) (key []byte, ok bool)

	// Encrypt seals plaintext under key.
	Encrypt(plaintext, key []byte) ([]byte, error)

	// Decrypt opens a blob produced by Encrypt. Any tampering, truncation or
	// wrong key yields an error wrapping ErrIntegrity and no plaintext.
	Decrypt(blob, key []byte) ([]byte, error)
}
