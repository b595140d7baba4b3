// Package vault stores sealed metadata database snapshots off the host.
package vault

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Vault provides an interface for snapshot storage backends.
// All operations use io.Reader/io.Writer for streaming so large snapshots
// are never held in memory by the caller.
type Vault interface {
	// Name returns the configured vault name.
	Name() string

	// PutSnapshot stores a sealed snapshot under name, replacing any
	// existing one. size is the number of bytes that will be read from r.
	PutSnapshot(ctx context.Context, name string, r io.Reader, size int64) error

	// GetSnapshot writes the snapshot stored under name to w.
	GetSnapshot(ctx context.Context, name string, w io.Writer) error

	// ListSnapshots returns the stored snapshot names in ascending order.
	ListSnapshots(ctx context.Context) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

// validName rejects snapshot names that are empty or could address
// anything outside the vault's snapshot area.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
