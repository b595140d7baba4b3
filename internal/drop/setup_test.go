package drop_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"darkdrop/internal/database"
	"darkdrop/internal/drop"
	"darkdrop/internal/model"
	"darkdrop/internal/storage"
	"darkdrop/internal/testutil"
)

var ctx = context.Background()

type fixture struct {
	svc   *drop.DropService
	db    *database.SQLiteDatabase
	blobs *storage.MemoryStore
	clock *testutil.StubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, drop.Options{PublicBaseURL: "https://drop.example.com/"})
}

// newFixtureWith wires a service over a fresh database. wrap, when set,
// replaces the database the service sees.
func newFixtureWith(t *testing.T, wrap func(drop.Database) drop.Database, opts drop.Options) *fixture {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	blobs := testutil.NewTestBlobStore()
	clock := testutil.FixedClock()

	var svcDB drop.Database = db
	if wrap != nil {
		svcDB = wrap(db)
	}
	svc := drop.NewDropService(svcDB, blobs, testutil.NewTestKeyRing(), nil, clock, testutil.NewStubIDGenerator(), opts)
	return &fixture{svc: svc, db: db, blobs: blobs, clock: clock}
}

func (f *fixture) account(t *testing.T, id string, quota int64, encrypted bool) *model.Account {
	t.Helper()
	a, err := f.svc.CreateAccount(ctx, drop.AccountRequest{
		ID:                id,
		Name:              strings.ToUpper(id),
		Domain:            id + ".example.com",
		StorageQuota:      quota,
		EncryptionEnabled: encrypted,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", id, err)
	}
	return a
}

// user creates a user directly in the database, skipping bcrypt.
func (f *fixture) user(t *testing.T, id string) drop.Actor {
	t.Helper()
	u := &model.User{ID: id, Email: id + "@example.com", PasswordHash: "x", Name: "User " + id, CreatedAt: f.clock.Now()}
	if err := f.db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", id, err)
	}
	return drop.Actor{Identity: model.UserIdentity(u.ID, u.Name), IPAddress: "203.0.113.7", UserAgent: "drop-test"}
}

func (f *fixture) agent(t *testing.T, name string) (drop.Actor, *model.Agent) {
	t.Helper()
	a, err := f.svc.CreateAgent(ctx, name)
	if err != nil {
		t.Fatalf("CreateAgent(%s) error = %v", name, err)
	}
	return drop.Actor{Identity: model.AgentIdentity(a.ID, a.Name), UserAgent: "agent/1.0"}, a
}

func (f *fixture) grant(t *testing.T, accountID string, actor drop.Actor, role model.Role) {
	t.Helper()
	if _, err := f.svc.GrantPermission(ctx, accountID, actor.Identity, role); err != nil {
		t.Fatalf("GrantPermission(%s, %s, %s) error = %v", accountID, actor.Identity, role, err)
	}
}

func (f *fixture) upload(t *testing.T, actor drop.Actor, accountID, folder, name, content string) *drop.UploadResult {
	t.Helper()
	res, err := f.svc.UploadFile(ctx, actor, drop.UploadRequest{
		AccountID:    accountID,
		OriginalName: name,
		Folder:       folder,
		Content:      strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("UploadFile(%s) error = %v", name, err)
	}
	return res
}

func (f *fixture) storageUsed(t *testing.T, accountID string) int64 {
	t.Helper()
	a, err := f.db.GetAccount(ctx, accountID)
	if err != nil || a == nil {
		t.Fatalf("GetAccount(%s) = %v, %v", accountID, a, err)
	}
	return a.StorageUsed
}

func readBody(t *testing.T, d *drop.Download) string {
	t.Helper()
	defer d.Body.Close()
	b, err := io.ReadAll(d.Body)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	return string(b)
}

// failingUploads fails RecordUpload after delegating nothing to the database.
type failingUploads struct {
	drop.Database
	err error
}

func (f *failingUploads) RecordUpload(context.Context, *model.File, *model.AuditEntry, string) (*model.File, *model.FileVersion, error) {
	return nil, nil, f.err
}

// failingDeletes fails DeleteFile without touching the database.
type failingDeletes struct {
	drop.Database
	err error
}

func (f *failingDeletes) DeleteFile(context.Context, string, *model.AuditEntry) error {
	return f.err
}

// hookedGetFile runs hook once, after the first GetFile of a file.
type hookedGetFile struct {
	drop.Database
	hook func()
}

func (h *hookedGetFile) GetFile(ctx context.Context, id string) (*model.File, error) {
	f, err := h.Database.GetFile(ctx, id)
	if hook := h.hook; hook != nil {
		h.hook = nil
		hook()
	}
	return f, err
}

// staleAccounts reports every account as missing, as a concurrent creator
// would see it before the other insert lands.
type staleAccounts struct {
	drop.Database
}

func (staleAccounts) GetAccount(context.Context, string) (*model.Account, error) {
	return nil, nil
}
