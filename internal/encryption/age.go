package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"darkdrop/internal/config"
)

// AgeSealer encrypts metadata database snapshots with filippo.io/age before
// they leave the host. The recipient (public key) is stored in plaintext;
// the identity is encrypted with the operator's passphrase using age's
// scrypt-based passphrase encryption, so only restores need the passphrase.
type AgeSealer struct {
	recipientPath string
	identityPath  string
	// workFactor is the scrypt work factor for the identity file; 0 uses age's default.
	workFactor int
}

// NewAgeSealer creates an AgeSealer from the backup configuration.
func NewAgeSealer(cfg config.BackupConfig) *AgeSealer {
	return &AgeSealer{
		recipientPath: cfg.RecipientPath,
		identityPath:  cfg.IdentityPath,
	}
}

// Setup generates a new X25519 key pair, stores the recipient in plaintext,
// and writes the identity encrypted under passphrase.
func (s *AgeSealer) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase is required")
	}
	if s.IsConfigured() {
		return fmt.Errorf("backup keys already exist at %s", s.identityPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{s.recipientPath, s.identityPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(s.recipientPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing recipient: %w", err)
	}

	f, err := os.OpenFile(s.identityPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	w, err := age.Encrypt(f, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted identity: %w", err)
	}
	return nil
}

// IsConfigured returns true if both key files exist.
func (s *AgeSealer) IsConfigured() bool {
	if _, err := os.Stat(s.recipientPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.identityPath); err != nil {
		return false
	}
	return true
}

// Seal reads a snapshot from r and writes it age-encrypted to w.
// Only the recipient is needed.
func (s *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	data, err := os.ReadFile(s.recipientPath)
	if err != nil {
		return fmt.Errorf("reading recipient: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing recipient: %w", err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients found in %s", s.recipientPath)
	}

	encWriter, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Unlock decrypts the identity with passphrase and returns an opener for
// sealed snapshots.
func (s *AgeSealer) Unlock(passphrase string) (*SnapshotOpener, error) {
	data, err := os.ReadFile(s.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(data), scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypting identity: %w", err)
	}
	identities, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", s.identityPath)
	}
	return &SnapshotOpener{identities: identities}, nil
}

// SnapshotOpener holds an unlocked identity in memory only.
type SnapshotOpener struct {
	identities []age.Identity
}

// Open reads a sealed snapshot from r and writes the plaintext to w.
func (o *SnapshotOpener) Open(r io.Reader, w io.Writer) error {
	dec, err := age.Decrypt(r, o.identities...)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, dec); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}
