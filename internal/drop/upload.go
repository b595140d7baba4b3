package drop

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"mime"
	"path"
	"strings"

	"darkdrop/internal/model"
)

const (
	storedNameSuffixBytes = 8
	maxStoredNameLength   = 128
	defaultMimeType       = "application/octet-stream"
)

// UploadRequest carries the content and metadata of one upload.
type UploadRequest struct {
	AccountID    string
	OriginalName string
	// MimeType is inferred from the name's extension when empty.
	MimeType string
	// Type defaults to the actor's own bucket when empty.
	Type    model.Bucket
	Folder  string
	Content io.Reader
}

// UploadResult describes a stored upload.
// Version is the snapshot of the content that was replaced, or nil when the
// upload created a new file.
type UploadResult struct {
	File    *model.File
	Version *model.FileVersion
}

// UploadFile stores content for the account. A second upload of the same
// original name into the same folder replaces the file's content and keeps
// the previous content as a version.
func (s *DropService) UploadFile(ctx context.Context, actor Actor, req UploadRequest) (*UploadResult, error) {
	if !actor.Identity.Valid() {
		return nil, fmt.Errorf("uploading file: %w", ErrUnauthenticated)
	}
	if req.AccountID == "" {
		return nil, validationErr("account id is required")
	}
	name, err := cleanOriginalName(req.OriginalName)
	if err != nil {
		return nil, err
	}
	bucket := req.Type
	if bucket == "" {
		bucket = model.DefaultBucket(actor.Identity.Kind)
	} else if _, err := model.ParseBucket(string(bucket)); err != nil {
		return nil, validationErr("%v", err)
	}
	folder := model.NormalizeFolder(req.Folder)
	if req.Content == nil {
		return nil, validationErr("no file content provided")
	}

	if err := s.require(ctx, actor, req.AccountID, model.RoleWrite); err != nil {
		return nil, err
	}
	account, err := s.database.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, storeErr("finding account", err)
	}
	if account == nil {
		return nil, notFoundErr("account %s", req.AccountID)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(name))
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	var key []byte
	if account.EncryptionEnabled {
		if s.encryptor != nil {
			if k, ok := s.encryptor.AccountKey(account.ID); ok {
				key = k
			}
		}
		if key == nil {
			s.logger.Warn("encryption enabled but no master key configured, storing plaintext", "account", account.ID)
		}
	}

	suffix, err := newSecret(storedNameSuffixBytes)
	if err != nil {
		return nil, fmt.Errorf("generating stored name: %w", err)
	}
	now := s.clock.Now()
	storedName := fmt.Sprintf("%d-%s-%s", now.UnixMilli(), suffix, sanitizeStoredName(name))

	content := newUploadReader(req.Content, s.opts.MaxUploadSize)
	var (
		location string
		size     int64
	)
	if key != nil {
		plaintext, err := io.ReadAll(content)
		if err != nil {
			return nil, readErr(err)
		}
		sealed, err := s.encryptor.Encrypt(plaintext, key)
		if err != nil {
			return nil, fmt.Errorf("encrypting upload: %w", err)
		}
		size = int64(len(sealed))
		location, err = s.blobs.Put(account.ID, bucket, storedName, bytes.NewReader(sealed), size)
		if err != nil {
			return nil, storeErr("writing blob", err)
		}
	} else {
		location, err = s.blobs.Put(account.ID, bucket, storedName, content, -1)
		if err != nil {
			return nil, readErr(err)
		}
		size = content.n
	}

	committed := false
	defer func() {
		if !committed {
			s.removeBlob(location)
		}
	}()

	file := &model.File{
		ID:           s.idgen.New(),
		AccountID:    account.ID,
		Name:         storedName,
		OriginalName: name,
		Path:         location,
		Size:         size,
		MimeType:     mimeType,
		Type:         bucket,
		Folder:       folder,
		Checksum:     content.Sum(),
		Encrypted:    key != nil,
		UploadedBy:   actor.Identity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	audit := s.auditEntry(actor, account.ID, model.AuditUpload)

	unlock := s.slots.Lock(slotKey(account.ID, folder, name))
	defer unlock()

	saved, version, err := s.database.RecordUpload(ctx, file, audit, s.idgen.New())
	if err != nil {
		return nil, storeErr("recording upload", err)
	}
	committed = true

	if version != nil {
		s.logger.Info("file version created", "file", saved.ID, "account", saved.AccountID, "version", version.VersionNumber)
	} else {
		s.logger.Info("file uploaded", "file", saved.ID, "account", saved.AccountID, "size", saved.Size)
	}
	return &UploadResult{File: saved, Version: version}, nil
}

// readErr classifies a failure while consuming upload content.
func readErr(err error) error {
	if Category(err) != nil {
		return fmt.Errorf("reading upload: %w", err)
	}
	return storeErr("writing blob", err)
}

// cleanOriginalName keeps only the last element of a client-supplied name.
func cleanOriginalName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", validationErr("file name is required")
	}
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" || strings.ContainsRune(name, 0) {
		return "", validationErr("invalid file name")
	}
	return name, nil
}

// sanitizeStoredName reduces a name to characters safe in any filesystem
// or object key.
func sanitizeStoredName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxStoredNameLength {
			break
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

// uploadReader hashes and counts content as it is read and fails once more
// than limit bytes have been seen. A negative limit disables the check.
type uploadReader struct {
	r     io.Reader
	limit int64
	n     int64
	hash  hash.Hash
}

func newUploadReader(r io.Reader, limit int64) *uploadReader {
	return &uploadReader{r: r, limit: limit, hash: sha256.New()}
}

func (u *uploadReader) Read(p []byte) (int, error) {
	n, err := u.r.Read(p)
	u.n += int64(n)
	u.hash.Write(p[:n])
	if u.limit >= 0 && u.n > u.limit {
		return n, fmt.Errorf("%w: upload exceeds %d bytes", ErrCapacity, u.limit)
	}
	return n, err
}

// Sum returns the hex SHA-256 of everything read so far.
func (u *uploadReader) Sum() string {
	return hex.EncodeToString(u.hash.Sum(nil))
}
