package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"darkdrop/internal/drop"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// Overhead is the fixed number of bytes Encrypt adds to the plaintext.
	Overhead = NonceSize + TagSize

	// DefaultIterations is the PBKDF2 iteration count for account keys.
	DefaultIterations = 100000

	saltPrefix = "darkdrop:"
)

// DeriveKey derives an account's 256-bit key from the master secret using
// PBKDF2-HMAC-SHA512 with the salt "darkdrop:<accountID>".
// A non-positive iteration count uses DefaultIterations.
func DeriveKey(master []byte, accountID string, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(master, []byte(saltPrefix+accountID), iterations, KeySize, sha512.New)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The result is laid out as [nonce][tag][ciphertext].
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// Seal appends ciphertext||tag; the stored layout puts the tag first.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(plaintext)], sealed[len(plaintext):]

	out := make([]byte, 0, Overhead+len(plaintext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. Truncated input, a wrong key or
// any modification fails with drop.ErrIntegrity and returns no plaintext.
func Decrypt(blob, key []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: encrypted blob is %d bytes, shorter than the %d byte header", drop.ErrIntegrity, len(blob), Overhead)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize:Overhead]
	ciphertext := blob[Overhead:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", drop.ErrIntegrity)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}
