package drop

import (
	"context"
	"time"

	"darkdrop/internal/model"
)

// Database provides metadata storage for accounts, identities, files,
// versions, audit entries and sessions.
// Lookups return (nil, nil) when the row does not exist. Every method that
// touches more than one row runs in a single transaction.
type Database interface {
	// Account operations

	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]*model.Account, error)

	// UpdateAccount saves name, domain, status, quota and the encryption flag.
	// StorageUsed is never written by this method.
	UpdateAccount(ctx context.Context, account *model.Account) error

	// User operations

	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserLogin(ctx context.Context, id string, at time.Time) error

	// Agent operations

	CreateAgent(ctx context.Context, agent *model.Agent) error
	GetAgentByID(ctx context.Context, id string) (*model.Agent, error)
	GetAgentByAPIKey(ctx context.Context, apiKey string) (*model.Agent, error)
	UpdateAgentUsage(ctx context.Context, id string, at time.Time) error
	UpdateAgentStatus(ctx context.Context, id string, status model.AgentStatus) error

	// Permission operations

	// GrantPermission creates the identity's permission on the account, or
	// replaces the role if one already exists.
	GrantPermission(ctx context.Context, permission *model.Permission) error

	// GetRole returns the identity's role on an active account.
	// found is false when there is no permission row or the account is suspended.
	GetRole(ctx context.Context, accountID string, identity model.Identity) (role model.Role, found bool, err error)

	// ListMemberships returns the active accounts the identity holds a role on.
	ListMemberships(ctx context.Context, identity model.Identity) ([]*model.Membership, error)

	// File operations

	GetFile(ctx context.Context, id string) (*model.File, error)

	// GetFileByPublicToken returns a public file by its share token.
	GetFileByPublicToken(ctx context.Context, token string) (*model.File, error)

	// ListFiles returns files matching the query, newest first.
	ListFiles(ctx context.Context, query model.FileQuery) ([]*model.File, error)

	// RecordUpload stores a freshly written file in one transaction:
	//  1. If no file exists at (account, folder, original name), inserts file
	//     and appends an upload audit entry.
	//  2. Otherwise snapshots the existing file as version max+1 (with ID
	//     versionID), overwrites its content fields from file, and appends a
	//     version_create audit entry.
	//  3. Adjusts the account's storage by the change in current bytes,
	//     failing with ErrCapacity when that would exceed a non-zero quota.
	// audit.FileID and audit.Action are filled in by this method.
	RecordUpload(ctx context.Context, file *model.File, audit *model.AuditEntry, versionID string) (*model.File, *model.FileVersion, error)

	// RecordDownload increments the download counter and, when audit is
	// non-nil, appends it as a download entry with FileID and Action filled in.
	RecordDownload(ctx context.Context, fileID string, audit *model.AuditEntry) error

	// ShareFile marks a file public under token, replacing any earlier token,
	// and appends audit as a share entry. audit.FileID and audit.Action are
	// filled in by this method.
	ShareFile(ctx context.Context, fileID string, token string, audit *model.AuditEntry) error

	// DeleteFile removes the file row (and its versions), subtracts its size
	// from the account and appends audit as a delete entry. audit.FileID and
	// audit.Action are filled in by this method. Returns ErrNotFound if the
	// row is gone.
	DeleteFile(ctx context.Context, fileID string, audit *model.AuditEntry) error

	// Version operations

	// ListVersions returns a file's versions, highest version number first.
	ListVersions(ctx context.Context, fileID string) ([]*model.FileVersion, error)

	// RestoreVersion snapshots the file's current state as a new version
	// (ID newVersionID), copies versionID's content onto the file, adjusts
	// storage by the size difference and appends audit. A version that does
	// not belong to the file is ErrNotFound.
	RestoreVersion(ctx context.Context, fileID, versionID, newVersionID string, audit *model.AuditEntry) (*model.File, *model.FileVersion, error)

	// Audit operations

	// ListAuditEntries returns a file's audit trail, newest first.
	ListAuditEntries(ctx context.Context, fileID string) ([]*model.AuditEntry, error)

	// Session operations

	CreateSession(ctx context.Context, session *model.Session) error

	// GetSessionByToken returns the session and its user. Expiry is not
	// checked here.
	GetSessionByToken(ctx context.Context, token string) (*model.Session, *model.User, error)
	DeleteSession(ctx context.Context, token string) error

	// DeleteExpiredSessions removes sessions whose expiry is at or before the given time.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)

	// Close closes the database connection.
	Close() error
}
