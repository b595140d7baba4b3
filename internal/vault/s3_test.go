package vault

import (
	"context"
	"testing"

	"darkdrop/internal/config"
)

func TestNewS3Vault_requiresBucket(t *testing.T) {
	if _, err := NewS3Vault(context.Background(), config.VaultConfig{Type: "s3", Name: "offsite"}); err == nil {
		t.Error("NewS3Vault() without a bucket succeeded")
	}
}

func TestNewS3Vault_noRequestsAtConstruction(t *testing.T) {
	t.Setenv(S3AccessKeyEnv, "test-key")
	t.Setenv(S3SecretKeyEnv, "test-secret")

	v, err := NewS3Vault(context.Background(), config.VaultConfig{
		Type:       "s3",
		Name:       "offsite",
		S3Bucket:   "darkdrop-backups",
		S3Prefix:   "/prod/",
		S3Region:   "us-east-1",
		S3Endpoint: "http://127.0.0.1:9",
	})
	if err != nil {
		t.Fatalf("NewS3Vault() error = %v", err)
	}
	if v.Name() != "offsite" {
		t.Errorf("Name() = %q", v.Name())
	}
	if v.prefix != "prod" {
		t.Errorf("prefix = %q, want prod", v.prefix)
	}
}

func TestS3Vault_key(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{"", "snap.db.age", "snapshots/snap.db.age"},
		{"prod", "snap.db.age", "prod/snapshots/snap.db.age"},
		{"a/b", "snap.db.age", "a/b/snapshots/snap.db.age"},
		{"prod", "", "prod/snapshots"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix+"/"+tt.name, func(t *testing.T) {
			v := &S3Vault{prefix: tt.prefix}
			if got := v.key(tt.name); got != tt.want {
				t.Errorf("key(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestS3Vault_rejectsInvalidNames(t *testing.T) {
	v := &S3Vault{bucket: "b"}
	for _, name := range []string{"", "../escape", ".hidden", "a/b"} {
		if err := v.PutSnapshot(context.Background(), name, nil, 0); err == nil {
			t.Errorf("PutSnapshot(%q) succeeded", name)
		}
		if err := v.GetSnapshot(context.Background(), name, nil); err == nil {
			t.Errorf("GetSnapshot(%q) succeeded", name)
		}
	}
}
