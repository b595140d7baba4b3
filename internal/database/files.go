package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

const fileColumns = `id, account_id, name, original_name, path, size, mime_type, type, folder, checksum, encrypted,
	uploaded_by_user_id, uploaded_by_agent_id, is_public, public_token, download_count, created_at, updated_at`

func scanFile(row scanner) (*model.File, error) {
	var f model.File
	var bucket string
	var userID, agentID, token sql.NullString
	err := row.Scan(&f.ID, &f.AccountID, &f.Name, &f.OriginalName, &f.Path, &f.Size, &f.MimeType, &bucket,
		&f.Folder, &f.Checksum, &f.Encrypted, &userID, &agentID, &f.IsPublic, &token, &f.DownloadCount,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Type = model.Bucket(bucket)
	f.PublicToken = token.String
	switch {
	case userID.Valid:
		f.UploadedBy = model.Identity{Kind: model.IdentityUser, ID: userID.String}
	case agentID.Valid:
		f.UploadedBy = model.Identity{Kind: model.IdentityAgent, ID: agentID.String}
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

// uploaderColumns splits an identity into the two nullable uploader columns.
func uploaderColumns(id model.Identity) (userID, agentID sql.NullString) {
	if id.Kind == model.IdentityAgent {
		return sql.NullString{}, nullString(id.ID)
	}
	return nullString(id.ID), sql.NullString{}
}

func getFile(ctx context.Context, q dbtx, where string, args ...any) (*model.File, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE `+where, args...)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return file, nil
}

func (s *SQLiteDatabase) GetFile(ctx context.Context, id string) (*model.File, error) {
	return getFile(ctx, s.db, `id = ?`, id)
}

func (s *SQLiteDatabase) GetFileByPublicToken(ctx context.Context, token string) (*model.File, error) {
	return getFile(ctx, s.db, `public_token = ? AND is_public = 1`, token)
}

func (s *SQLiteDatabase) ListFiles(ctx context.Context, query model.FileQuery) ([]*model.File, error) {
	where := []string{"account_id = ?"}
	args := []any{query.AccountID}
	if query.Folder != "" {
		where = append(where, "folder = ?")
		args = append(args, query.Folder)
	}
	if query.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(query.Type))
	}
	if query.NameContains != "" {
		pattern := "%" + escapeLike(query.NameContains) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR original_name LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, rowid DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func insertFile(ctx context.Context, tx *sql.Tx, f *model.File) error {
	userID, agentID := uploaderColumns(f.UploadedBy)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AccountID, f.Name, f.OriginalName, f.Path, f.Size, f.MimeType, string(f.Type), f.Folder,
		f.Checksum, f.Encrypted, userID, agentID, f.IsPublic, nullString(f.PublicToken), f.DownloadCount,
		utc(f.CreatedAt), utc(f.UpdatedAt))
	if err != nil {
		return constraintErr("inserting file", err)
	}
	return nil
}

// RecordUpload atomically records an upload:
//  1. Looks up the file occupying the (account, folder, original name) slot.
//  2. If there is none, inserts the new file.
//  3. Otherwise snapshots the current content as the next version and
//     overwrites the file's content fields in place.
//  4. Applies the size change to the account, enforcing its quota.
//  5. Appends the audit entry.
func (s *SQLiteDatabase) RecordUpload(ctx context.Context, file *model.File, audit *model.AuditEntry, versionID string) (*model.File, *model.FileVersion, error) {
	var saved *model.File
	var version *model.FileVersion

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getFile(ctx, tx, `account_id = ? AND folder = ? AND original_name = ?`,
			file.AccountID, file.Folder, file.OriginalName)
		if err != nil {
			return err
		}

		var delta int64
		if existing == nil {
			if err := insertFile(ctx, tx, file); err != nil {
				return err
			}
			created := *file
			saved = &created
			delta = file.Size
			audit.Action = model.AuditUpload
		} else {
			version, err = snapshotFile(ctx, tx, existing, versionID, file.UpdatedAt)
			if err != nil {
				return err
			}

			userID, agentID := uploaderColumns(file.UploadedBy)
			_, err = tx.ExecContext(ctx,
				`UPDATE files SET name = ?, path = ?, size = ?, mime_type = ?, checksum = ?, encrypted = ?,
				 uploaded_by_user_id = ?, uploaded_by_agent_id = ?, updated_at = ? WHERE id = ?`,
				file.Name, file.Path, file.Size, file.MimeType, file.Checksum, file.Encrypted,
				userID, agentID, utc(file.UpdatedAt), existing.ID)
			if err != nil {
				return fmt.Errorf("overwriting file: %w", err)
			}

			delta = file.Size - existing.Size
			updated := *existing
			updated.Name = file.Name
			updated.Path = file.Path
			updated.Size = file.Size
			updated.MimeType = file.MimeType
			updated.Checksum = file.Checksum
			updated.Encrypted = file.Encrypted
			updated.UploadedBy = file.UploadedBy
			updated.UpdatedAt = file.UpdatedAt
			saved = &updated
			audit.Action = model.AuditVersionCreate
		}

		if err := adjustStorage(ctx, tx, file.AccountID, delta); err != nil {
			return err
		}
		audit.FileID = saved.ID
		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, version, nil
}

func (s *SQLiteDatabase) RecordDownload(ctx context.Context, fileID string, audit *model.AuditEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE files SET download_count = download_count + 1 WHERE id = ?`, fileID)
		if err != nil {
			return fmt.Errorf("incrementing download count: %w", err)
		}
		if err := expectOne(res, "file "+fileID); err != nil {
			return err
		}
		if audit == nil {
			return nil
		}
		audit.FileID = fileID
		audit.Action = model.AuditDownload
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) ShareFile(ctx context.Context, fileID string, token string, audit *model.AuditEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE files SET is_public = 1, public_token = ? WHERE id = ?`, token, fileID)
		if err != nil {
			return constraintErr("sharing file", err)
		}
		if err := expectOne(res, "file "+fileID); err != nil {
			return err
		}
		audit.FileID = fileID
		audit.Action = model.AuditShare
		return insertAudit(ctx, tx, audit)
	})
}

func (s *SQLiteDatabase) DeleteFile(ctx context.Context, fileID string, audit *model.AuditEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var accountID string
		var size int64
		err := tx.QueryRowContext(ctx, `SELECT account_id, size FROM files WHERE id = ?`, fileID).Scan(&accountID, &size)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: file %s", drop.ErrNotFound, fileID)
		} else if err != nil {
			return fmt.Errorf("finding file: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
			return fmt.Errorf("deleting file: %w", err)
		}
		if err := adjustStorage(ctx, tx, accountID, -size); err != nil {
			return err
		}
		audit.FileID = fileID
		audit.Action = model.AuditDelete
		return insertAudit(ctx, tx, audit)
	})
}

// adjustStorage applies delta to the account's storage_used. Growth that
// would take a quota-limited account past its quota fails with ErrCapacity.
func adjustStorage(ctx context.Context, tx *sql.Tx, accountID string, delta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET storage_used = MAX(0, storage_used + ?)
		 WHERE id = ? AND (? <= 0 OR storage_quota = 0 OR storage_used + ? <= storage_quota)`,
		delta, accountID, delta, delta)
	if err != nil {
		return fmt.Errorf("updating storage used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	account, err := getAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: account %s", drop.ErrNotFound, accountID)
	}
	return fmt.Errorf("%w: account %s would use %d of %d bytes", drop.ErrCapacity, accountID,
		account.StorageUsed+delta, account.StorageQuota)
}

// Version operations

const versionColumns = `id, file_id, version_number, path, size, checksum, mime_type, encrypted, created_by, created_at`

func scanVersion(row scanner) (*model.FileVersion, error) {
	var v model.FileVersion
	if err := row.Scan(&v.ID, &v.FileID, &v.VersionNumber, &v.Path, &v.Size, &v.Checksum, &v.MimeType,
		&v.Encrypted, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

// snapshotFile stores the file's current content as its next version.
func snapshotFile(ctx context.Context, tx *sql.Tx, file *model.File, versionID string, at time.Time) (*model.FileVersion, error) {
	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM file_versions WHERE file_id = ?`, file.ID).Scan(&next); err != nil {
		return nil, fmt.Errorf("finding next version number: %w", err)
	}

	createdBy := file.UploadedBy.ID
	if createdBy == "" {
		createdBy = model.UnknownPerformer
	}
	v := &model.FileVersion{
		ID:            versionID,
		FileID:        file.ID,
		VersionNumber: next,
		Path:          file.Path,
		Size:          file.Size,
		Checksum:      file.Checksum,
		MimeType:      file.MimeType,
		Encrypted:     file.Encrypted,
		CreatedBy:     createdBy,
		CreatedAt:     at.UTC(),
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO file_versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FileID, v.VersionNumber, v.Path, v.Size, v.Checksum, v.MimeType, v.Encrypted, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return nil, constraintErr("inserting file version", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) ListVersions(ctx context.Context, fileID string) ([]*model.FileVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM file_versions WHERE file_id = ? ORDER BY version_number DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []*model.FileVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// RestoreVersion atomically makes a version current again:
//  1. Loads the file and the version, which must belong to it.
//  2. Snapshots the file's current content as the next version.
//  3. Copies the version's content fields onto the file.
//  4. Applies the size change to the account, enforcing its quota.
//  5. Appends the audit entry.
func (s *SQLiteDatabase) RestoreVersion(ctx context.Context, fileID, versionID, newVersionID string, audit *model.AuditEntry) (*model.File, *model.FileVersion, error) {
	var restored *model.File
	var snapshot *model.FileVersion

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getFile(ctx, tx, `id = ?`, fileID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: file %s", drop.ErrNotFound, fileID)
		}

		target, err := scanVersion(tx.QueryRowContext(ctx,
			`SELECT `+versionColumns+` FROM file_versions WHERE id = ? AND file_id = ?`, versionID, fileID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: version %s of file %s", drop.ErrNotFound, versionID, fileID)
		} else if err != nil {
			return fmt.Errorf("finding version: %w", err)
		}

		snapshot, err = snapshotFile(ctx, tx, current, newVersionID, audit.CreatedAt)
		if err != nil {
			return err
		}

		updated := *current
		updated.Name = path.Base(target.Path)
		updated.Path = target.Path
		updated.Size = target.Size
		updated.Checksum = target.Checksum
		updated.MimeType = target.MimeType
		updated.Encrypted = target.Encrypted
		updated.UpdatedAt = audit.CreatedAt.UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE files SET name = ?, path = ?, size = ?, checksum = ?, mime_type = ?, encrypted = ?, updated_at = ? WHERE id = ?`,
			updated.Name, updated.Path, updated.Size, updated.Checksum, updated.MimeType, updated.Encrypted,
			updated.UpdatedAt, fileID)
		if err != nil {
			return fmt.Errorf("restoring file content: %w", err)
		}

		if err := adjustStorage(ctx, tx, current.AccountID, target.Size-current.Size); err != nil {
			return err
		}
		audit.FileID = fileID
		audit.Action = model.AuditVersionCreate
		if err := insertAudit(ctx, tx, audit); err != nil {
			return err
		}
		restored = &updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return restored, snapshot, nil
}

// Audit operations

const auditColumns = `id, file_id, account_id, action, performed_by, performed_by_type, ip_address, user_agent, created_at`

func insertAudit(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FileID, e.AccountID, string(e.Action), e.PerformedBy, string(e.PerformedByType),
		e.IPAddress, e.UserAgent, utc(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListAuditEntries(ctx context.Context, fileID string) ([]*model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE file_id = ? ORDER BY created_at DESC, rowid DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var action, kind string
		if err := rows.Scan(&e.ID, &e.FileID, &e.AccountID, &action, &e.PerformedBy, &kind,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.PerformedByType = model.IdentityKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
