package encryption

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"darkdrop/internal/config"
	"darkdrop/internal/drop"
)

// MasterKeyEnv overrides the configured master key.
const MasterKeyEnv = "DARKDROP_MASTER_KEY"

// KeyRing implements drop.Encryptor. Account keys are derived from a single
// master secret on every call; nothing is cached.
type KeyRing struct {
	master     []byte
	iterations int
	logger     drop.Logger
	warnOnce   sync.Once
}

var _ drop.Encryptor = (*KeyRing)(nil)

// NewKeyRing creates a KeyRing. An empty master secret yields a KeyRing that
// reports every key as unavailable.
func NewKeyRing(master []byte, iterations int, logger drop.Logger) *KeyRing {
	if logger == nil {
		logger = drop.NewNopLogger()
	}
	return &KeyRing{master: master, iterations: iterations, logger: logger}
}

// NewKeyRingFromConfig builds a KeyRing from the environment or, failing
// that, the config file.
func NewKeyRingFromConfig(cfg config.EncryptionConfig, logger drop.Logger) (*KeyRing, error) {
	raw := strings.TrimSpace(os.Getenv(MasterKeyEnv))
	source := MasterKeyEnv
	if raw == "" {
		raw = cfg.MasterKey
		source = "encryption.master_key"
	}

	var master []byte
	if raw != "" {
		var err error
		master, err = hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", source, err)
		}
	}
	return NewKeyRing(master, cfg.KDFIterations, logger), nil
}

// Available reports whether a master secret is configured.
func (k *KeyRing) Available() bool {
	return len(k.master) > 0
}

// AccountKey derives the key for an account. Without a master secret it
// returns ok == false and logs a warning the first time.
func (k *KeyRing) AccountKey(accountID string) ([]byte, bool) {
	if !k.Available() {
		k.warnOnce.Do(func() {
			k.logger.Warn("no master key configured, encryption at rest is unavailable", "env", MasterKeyEnv)
		})
		return nil, false
	}
	return DeriveKey(k.master, accountID, k.iterations), true
}

func (k *KeyRing) Encrypt(plaintext, key []byte) ([]byte, error) {
	return Encrypt(plaintext, key)
}

func (k *KeyRing) Decrypt(blob, key []byte) ([]byte, error) {
	return Decrypt(blob, key)
}
