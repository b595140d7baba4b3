package drop

import (
	"time"

	"darkdrop/internal/model"
)

const (
	// DefaultSessionTTL is how long a login session stays valid.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// DefaultMaxUploadSize caps a single upload's plaintext.
	DefaultMaxUploadSize int64 = 5 << 30
)

// Options tunes DropService behaviour. Zero values take the defaults above.
type Options struct {
	// PublicBaseURL prefixes share links, e.g. "https://drop.example.com".
	PublicBaseURL string
	// MaxUploadSize in bytes. Negative means unlimited.
	MaxUploadSize int64
	SessionTTL    time.Duration
}

// Actor is the authenticated caller of a file operation, plus request
// metadata recorded in the audit trail.
type Actor struct {
	Identity  model.Identity
	IPAddress string
	UserAgent string
}

// DropService coordinates identity, access control, blob storage, encryption
// and metadata to implement the file operations exposed by the HTTP API,
// the tool server and the CLI.
type DropService struct {
	database  Database
	blobs     BlobStore
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	opts      Options
	slots     *slotLocks
}

// NewDropService creates a new DropService with the provided dependencies.
// A nil logger discards output; a nil encryptor stores every file in plaintext.
func NewDropService(database Database, blobs BlobStore, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, opts Options) *DropService {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	if opts.MaxUploadSize == 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &DropService{
		database:  database,
		blobs:     blobs,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts,
		slots:     newSlotLocks(),
	}
}

// auditEntry builds an entry for the actor. FileID is left for the caller
// or the database to fill.
func (s *DropService) auditEntry(actor Actor, accountID string, action model.AuditAction) *model.AuditEntry {
	performer := actor.Identity.ID
	if performer == "" {
		performer = model.UnknownPerformer
	}
	return &model.AuditEntry{
		ID:              s.idgen.New(),
		AccountID:       accountID,
		Action:          action,
		PerformedBy:     performer,
		PerformedByType: actor.Identity.Kind,
		IPAddress:       actor.IPAddress,
		UserAgent:       actor.UserAgent,
		CreatedAt:       s.clock.Now(),
	}
}

// removeBlob deletes stored bytes, logging instead of failing.
func (s *DropService) removeBlob(location string) {
	if location == "" {
		return
	}
	if err := s.blobs.Remove(location); err != nil {
		s.logger.Warn("failed to remove blob", "location", location, "error", err)
	}
}
