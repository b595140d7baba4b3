package drop_test

import (
	"errors"
	"io"
	"testing"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
	"darkdrop/internal/testutil"
)

func TestDropService_DownloadFile(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acme", 0, false)
	f.account(t, "globex", 0, false)
	writer := f.user(t, "writer")
	reader := f.user(t, "reader")
	outsider := f.user(t, "outsider")
	f.grant(t, "acme", writer, model.RoleWrite)
	f.grant(t, "acme", reader, model.RoleRead)
	f.grant(t, "globex", outsider, model.RoleAdmin)

	up := f.upload(t, writer, "acme", "/", "hello.txt", "hello, world")

	d, err := f.svc.DownloadFile(ctx, reader, up.File.ID)
	if err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}
	if got := readBody(t, d); got != "hello, world" {
		t.Errorf("body = %q", got)
	}
	if d.File.DownloadCount != 1 {
		t.Errorf("DownloadCount = %d, want 1", d.File.DownloadCount)
	}

	stored, err := f.db.GetFile(ctx, up.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DownloadCount != 1 {
		t.Errorf("stored DownloadCount = %d, want 1", stored.DownloadCount)
	}
	entries, err := f.db.ListAuditEntries(ctx, up.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Action != model.AuditDownload || entries[0].PerformedBy != "reader" {
		t.Errorf("audit = %+v, want a download by reader on top", entries)
	}

	t.Run("cross tenant is forbidden", func(t *testing.T) {
		if _, err := f.svc.DownloadFile(ctx, outsider, up.File.ID); !errors.Is(err, drop.ErrForbidden) {
			t.Errorf("DownloadFile() error = %v, want ErrForbidden", err)
		}
	})
	t.Run("missing file", func(t *testing.T) {
		if _, err := f.svc.DownloadFile(ctx, reader, "no-such-file"); !errors.Is(err, drop.ErrNotFound) {
			t.Errorf("DownloadFile() error = %v, want ErrNotFound", err)
		}
	})
	t.Run("unauthenticated", func(t *testing.T) {
		if _, err := f.svc.DownloadFile(ctx, drop.Actor{}, up.File.ID); !errors.Is(err, drop.ErrUnauthenticated) {
			t.Errorf("DownloadFile() error = %v, want ErrUnauthenticated", err)
		}
	})
	t.Run("forbidden downloads are not counted", func(t *testing.T) {
		stored, err := f.db.GetFile(ctx, up.File.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.DownloadCount != 1 {
			t.Errorf("DownloadCount = %d, want 1", stored.DownloadCount)
		}
	})
}

func TestDropService_DownloadFile_Integrity(t *testing.T) {
	tests := []struct {
		name      string
		encrypted bool
	}{
		{"plaintext", false},
		{"encrypted", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.account(t, "acme", 0, tt.encrypted)
			alice := f.user(t, "alice")
			f.grant(t, "acme", alice, model.RoleWrite)

			up := f.upload(t, alice, "acme", "/", "ledger.csv", "a,b,c\n1,2,3\n")

			stored, _ := f.blobs.Bytes(up.File.Path)
			stored[len(stored)-1] ^= 0xff
			f.blobs.Set(up.File.Path, stored)

			d, err := f.svc.DownloadFile(ctx, alice, up.File.ID)
			if tt.encrypted {
				if !errors.Is(err, drop.ErrIntegrity) {
					t.Errorf("DownloadFile() error = %v, want ErrIntegrity", err)
				}
				if d != nil {
					t.Error("DownloadFile() returned content for a tampered blob")
				}
				return
			}
			if err != nil {
				t.Fatalf("DownloadFile() error = %v", err)
			}
			defer d.Body.Close()
			if _, err := io.ReadAll(d.Body); !errors.Is(err, drop.ErrIntegrity) {
				t.Errorf("reading tampered body error = %v, want ErrIntegrity", err)
			}
		})
	}
}

func TestDropService_DownloadFile_MissingBlob(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acme", 0, false)
	alice := f.user(t, "alice")
	f.grant(t, "acme", alice, model.RoleWrite)
	up := f.upload(t, alice, "acme", "/", "gone.txt", "bye")

	if err := f.blobs.Remove(up.File.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.DownloadFile(ctx, alice, up.File.ID); !errors.Is(err, drop.ErrNotFound) {
		t.Errorf("DownloadFile() error = %v, want ErrNotFound", err)
	}
}

func TestDropService_DownloadFile_EncryptedWithoutKey(t *testing.T) {
	f := newFixture(t)
	f.account(t, "vault", 0, true)
	alice := f.user(t, "alice")
	f.grant(t, "vault", alice, model.RoleWrite)
	up := f.upload(t, alice, "vault", "/", "secret", "classified")

	// Same data, but the service restarted without the master key.
	svc := drop.NewDropService(f.db, f.blobs, testutil.NewUnavailableKeyRing(), nil, f.clock, testutil.NewStubIDGenerator(), drop.Options{})
	if _, err := svc.DownloadFile(ctx, alice, up.File.ID); !errors.Is(err, drop.ErrDependency) {
		t.Errorf("DownloadFile() error = %v, want ErrDependency", err)
	}
}

func TestDropService_DownloadPublic(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acme", 0, true)
	alice := f.user(t, "alice")
	f.grant(t, "acme", alice, model.RoleWrite)
	up := f.upload(t, alice, "acme", "/", "brochure.txt", "come visit")

	if _, err := f.svc.DownloadPublic(ctx, "unknown-token"); !errors.Is(err, drop.ErrNotFound) {
		t.Errorf("DownloadPublic(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.DownloadPublic(ctx, ""); !errors.Is(err, drop.ErrNotFound) {
		t.Errorf("DownloadPublic(\"\") error = %v, want ErrNotFound", err)
	}

	share, err := f.svc.ShareFile(ctx, alice, up.File.ID)
	if err != nil {
		t.Fatalf("ShareFile() error = %v", err)
	}

	d, err := f.svc.DownloadPublic(ctx, share.Token)
	if err != nil {
		t.Fatalf("DownloadPublic() error = %v", err)
	}
	if got := readBody(t, d); got != "come visit" {
		t.Errorf("body = %q, want the decrypted content", got)
	}

	stored, err := f.db.GetFile(ctx, up.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DownloadCount != 1 {
		t.Errorf("DownloadCount = %d, want 1", stored.DownloadCount)
	}
	entries, err := f.db.ListAuditEntries(ctx, up.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Action == model.AuditDownload {
			t.Errorf("public download was audited: %+v", e)
		}
	}
}
