package drop

import (
	"context"

	"darkdrop/internal/model"
)

// ListVersions returns the file's earlier contents, newest first.
func (s *DropService) ListVersions(ctx context.Context, actor Actor, fileID string) ([]*model.FileVersion, error) {
	file, err := s.authorizeFile(ctx, actor, fileID, model.RoleRead)
	if err != nil {
		return nil, err
	}
	versions, err := s.database.ListVersions(ctx, file.ID)
	if err != nil {
		return nil, storeErr("listing versions", err)
	}
	return versions, nil
}

// RestoreVersion makes an earlier version the file's current content.
// The content being replaced is kept as a new version first; returns the
// updated file and that snapshot.
func (s *DropService) RestoreVersion(ctx context.Context, actor Actor, fileID, versionID string) (*model.File, *model.FileVersion, error) {
	if versionID == "" {
		return nil, nil, validationErr("version id is required")
	}
	file, err := s.authorizeFile(ctx, actor, fileID, model.RoleWrite)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.slots.Lock(slotKey(file.AccountID, file.Folder, file.OriginalName))
	defer unlock()

	audit := s.auditEntry(actor, file.AccountID, model.AuditVersionCreate)
	audit.FileID = file.ID
	restored, snapshot, err := s.database.RestoreVersion(ctx, file.ID, versionID, s.idgen.New(), audit)
	if err != nil {
		return nil, nil, storeErr("restoring version", err)
	}

	s.logger.Info("file version restored", "file", file.ID, "version", versionID, "snapshot", snapshot.VersionNumber)
	return restored, snapshot, nil
}
