package testutil

import (
	"darkdrop/internal/encryption"
)

// TestMasterKey is the master secret used by NewTestKeyRing.
var TestMasterKey = []byte("darkdrop-test-master-key-32bytes")

// NewTestKeyRing returns a KeyRing with a fixed master secret and a low
// iteration count so key derivation is fast.
func NewTestKeyRing() *encryption.KeyRing {
	return encryption.NewKeyRing(TestMasterKey, 1000, nil)
}

// NewUnavailableKeyRing returns a KeyRing with no master secret.
func NewUnavailableKeyRing() *encryption.KeyRing {
	return encryption.NewKeyRing(nil, 1000, nil)
}
