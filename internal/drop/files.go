package drop

import (
	"context"
	"fmt"
	"strings"

	"darkdrop/internal/model"
)

const shareTokenBytes = 16

// ListOptions narrows a file listing. Empty fields match everything.
type ListOptions struct {
	Folder string
	Type   model.Bucket
}

// GetFile returns a file's metadata.
func (s *DropService) GetFile(ctx context.Context, actor Actor, fileID string) (*model.File, error) {
	return s.authorizeFile(ctx, actor, fileID, model.RoleRead)
}

// ListFiles returns the account's files, newest first.
func (s *DropService) ListFiles(ctx context.Context, actor Actor, accountID string, opts ListOptions) ([]*model.File, error) {
	query, err := s.fileQuery(ctx, actor, accountID, opts)
	if err != nil {
		return nil, err
	}
	files, err := s.database.ListFiles(ctx, query)
	if err != nil {
		return nil, storeErr("listing files", err)
	}
	return files, nil
}

// SearchFiles returns the account's files whose stored or original name
// contains term, newest first.
func (s *DropService) SearchFiles(ctx context.Context, actor Actor, accountID, term string, opts ListOptions) ([]*model.File, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, validationErr("search query is required")
	}
	query, err := s.fileQuery(ctx, actor, accountID, opts)
	if err != nil {
		return nil, err
	}
	query.NameContains = term
	files, err := s.database.ListFiles(ctx, query)
	if err != nil {
		return nil, storeErr("searching files", err)
	}
	return files, nil
}

func (s *DropService) fileQuery(ctx context.Context, actor Actor, accountID string, opts ListOptions) (model.FileQuery, error) {
	if !actor.Identity.Valid() {
		return model.FileQuery{}, fmt.Errorf("listing files: %w", ErrUnauthenticated)
	}
	query := model.FileQuery{AccountID: accountID}
	if opts.Folder != "" {
		query.Folder = model.NormalizeFolder(opts.Folder)
	}
	if opts.Type != "" {
		bucket, err := model.ParseBucket(string(opts.Type))
		if err != nil {
			return model.FileQuery{}, validationErr("%v", err)
		}
		query.Type = bucket
	}
	if err := s.require(ctx, actor, accountID, model.RoleRead); err != nil {
		return model.FileQuery{}, err
	}
	return query, nil
}

// DeleteFile removes a file, its versions and their bytes.
// Byte removal is best-effort and is attempted even when the metadata
// deletion fails.
func (s *DropService) DeleteFile(ctx context.Context, actor Actor, fileID string) error {
	file, err := s.authorizeFile(ctx, actor, fileID, model.RoleWrite)
	if err != nil {
		return err
	}

	unlock := s.slots.Lock(slotKey(file.AccountID, file.Folder, file.OriginalName))
	defer unlock()

	// An upload to the slot may have replaced the content before the lock.
	file, err = s.database.GetFile(ctx, fileID)
	if err != nil {
		return storeErr("finding file", err)
	}
	if file == nil {
		return notFoundErr("file %s", fileID)
	}

	versions, err := s.database.ListVersions(ctx, file.ID)
	if err != nil {
		return storeErr("listing versions", err)
	}

	audit := s.auditEntry(actor, file.AccountID, model.AuditDelete)
	audit.FileID = file.ID
	deleteErr := s.database.DeleteFile(ctx, file.ID, audit)

	locations := map[string]bool{file.Path: true}
	s.removeBlob(file.Path)
	for _, v := range versions {
		if !locations[v.Path] {
			locations[v.Path] = true
			s.removeBlob(v.Path)
		}
	}

	if deleteErr != nil {
		return storeErr("deleting file", deleteErr)
	}
	s.logger.Info("file deleted", "file", file.ID, "account", file.AccountID, "versions", len(versions))
	return nil
}

// ShareResult is a file made public.
type ShareResult struct {
	File  *model.File
	Token string
	URL   string
}

// ShareFile makes a file downloadable by anyone holding the returned link.
// Sharing again replaces the previous token.
func (s *DropService) ShareFile(ctx context.Context, actor Actor, fileID string) (*ShareResult, error) {
	file, err := s.authorizeFile(ctx, actor, fileID, model.RoleWrite)
	if err != nil {
		return nil, err
	}

	token, err := newSecret(shareTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating share token: %w", err)
	}
	audit := s.auditEntry(actor, file.AccountID, model.AuditShare)
	audit.FileID = file.ID
	if err := s.database.ShareFile(ctx, file.ID, token, audit); err != nil {
		return nil, storeErr("sharing file", err)
	}
	file.IsPublic = true
	file.PublicToken = token

	s.logger.Info("file shared", "file", file.ID, "by", actor.Identity.String())
	return &ShareResult{File: file, Token: token, URL: s.PublicURL(token)}, nil
}

// PublicURL returns the share link for a token.
func (s *DropService) PublicURL(token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/public/" + token
}

// AuditLog returns a file's audit trail, newest first. Requires admin.
func (s *DropService) AuditLog(ctx context.Context, actor Actor, fileID string) ([]*model.AuditEntry, error) {
	file, err := s.authorizeFile(ctx, actor, fileID, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	entries, err := s.database.ListAuditEntries(ctx, file.ID)
	if err != nil {
		return nil, storeErr("listing audit entries", err)
	}
	return entries, nil
}
