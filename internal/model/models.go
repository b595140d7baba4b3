package model

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Role is a capability level on an account. Roles form a total order:
// read < write < admin.
type Role string

const (
	RoleRead  Role = "read"
	RoleWrite Role = "write"
	RoleAdmin Role = "admin"
)

// Rank returns the position of the role in the hierarchy, or 0 for an unknown role.
func (r Role) Rank() int {
	switch r {
	case RoleRead:
		return 1
	case RoleWrite:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether r grants at least the required level.
// An unknown role never satisfies anything.
func (r Role) Satisfies(required Role) bool {
	have := r.Rank()
	return have > 0 && have >= required.Rank() && required.Rank() > 0
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if r.Rank() == 0 {
		return "", fmt.Errorf("unknown role %q (want read, write or admin)", s)
	}
	return r, nil
}

// IdentityKind tags an Identity as a human user or a machine agent.
type IdentityKind string

const (
	IdentityUser  IdentityKind = "user"
	IdentityAgent IdentityKind = "agent"
)

// Identity is the result of authentication: exactly one user or one agent.
// Code that needs to distinguish the two switches on Kind.
type Identity struct {
	Kind IdentityKind
	ID   string
	Name string
}

// UserIdentity returns an Identity for the given user.
func UserIdentity(id, name string) Identity {
	return Identity{Kind: IdentityUser, ID: id, Name: name}
}

// AgentIdentity returns an Identity for the given agent.
func AgentIdentity(id, name string) Identity {
	return Identity{Kind: IdentityAgent, ID: id, Name: name}
}

// Valid reports whether the identity names exactly one known principal.
func (i Identity) Valid() bool {
	return i.ID != "" && (i.Kind == IdentityUser || i.Kind == IdentityAgent)
}

func (i Identity) String() string {
	return string(i.Kind) + ":" + i.ID
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// Account is a tenant. StorageUsed is the sum of the sizes of its current files.
type Account struct {
	ID                string
	Name              string
	Domain            string
	Status            AccountStatus
	StorageUsed       int64
	StorageQuota      int64 // bytes; 0 means unlimited
	EncryptionEnabled bool
	CreatedAt         time.Time
}

// User is a human identity authenticated by session token.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentRevoked AgentStatus = "revoked"
)

// Agent is a machine identity authenticated by API key.
type Agent struct {
	ID        string
	Name      string
	APIKey    string
	Status    AgentStatus
	CreatedAt time.Time
	LastUsed  *time.Time
}

// Permission grants one identity a role on one account.
type Permission struct {
	ID        string
	AccountID string
	Identity  Identity
	Role      Role
	CreatedAt time.Time
}

// Membership is an account the identity can access, with its role there.
type Membership struct {
	AccountID   string
	AccountName string
	Domain      string
	Role        Role
}

// Bucket is the logical storage area a file lives in.
type Bucket string

const (
	BucketUsers  Bucket = "users"
	BucketAgents Bucket = "agents"
	BucketShared Bucket = "shared"
)

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(s); b {
	case BucketUsers, BucketAgents, BucketShared:
		return b, nil
	default:
		return "", fmt.Errorf("unknown file type %q (want users, agents or shared)", s)
	}
}

// DefaultBucket is the bucket an upload lands in when the caller names none.
func DefaultBucket(kind IdentityKind) Bucket {
	if kind == IdentityAgent {
		return BucketAgents
	}
	return BucketUsers
}

// File is the current state of a stored file.
// Size is the stored size (ciphertext length when Encrypted);
// Checksum is always the SHA-256 of the plaintext.
type File struct {
	ID            string
	AccountID     string
	Name          string // generated storage name
	OriginalName  string // client-supplied name
	Path          string
	Size          int64
	MimeType      string
	Type          Bucket
	Folder        string
	Checksum      string
	Encrypted     bool
	UploadedBy    Identity
	IsPublic      bool
	PublicToken   string
	DownloadCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FileVersion is an immutable snapshot of a file's earlier content.
type FileVersion struct {
	ID            string
	FileID        string
	VersionNumber int64
	Path          string
	Size          int64
	Checksum      string
	MimeType      string
	Encrypted     bool
	CreatedBy     string
	CreatedAt     time.Time
}

// AuditAction is the kind of operation an audit entry records.
type AuditAction string

const (
	AuditUpload        AuditAction = "upload"
	AuditDownload      AuditAction = "download"
	AuditVersionCreate AuditAction = "version_create"
	AuditDelete        AuditAction = "delete"
	AuditShare         AuditAction = "share"
)

// UnknownPerformer is recorded when an audited action has no identity id.
const UnknownPerformer = "unknown"

// AuditEntry is an append-only record of an action on a file.
type AuditEntry struct {
	ID              string
	FileID          string
	AccountID       string
	Action          AuditAction
	PerformedBy     string
	PerformedByType IdentityKind
	IPAddress       string
	UserAgent       string
	CreatedAt       time.Time
}

// Session is a logged-in user's bearer token.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// FileQuery filters a file listing. Empty fields match everything.
type FileQuery struct {
	AccountID    string
	Folder       string
	Type         Bucket
	NameContains string
}

// NormalizeFolder cleans a virtual folder path. The result always starts with
// "/" and never ends with one, except for the root itself.
func NormalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "/"
	}
	return path.Clean("/" + folder)
}
