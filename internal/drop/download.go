package drop

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"darkdrop/internal/model"
)

// Download is an opened file. Callers must close Body.
type Download struct {
	File *model.File
	Body io.ReadCloser
}

// DownloadFile opens a file for an actor with read access to its account,
// counts the download and records it in the audit trail.
func (s *DropService) DownloadFile(ctx context.Context, actor Actor, fileID string) (*Download, error) {
	file, err := s.authorizeFile(ctx, actor, fileID, model.RoleRead)
	if err != nil {
		return nil, err
	}

	body, err := s.openContent(file)
	if err != nil {
		return nil, err
	}

	audit := s.auditEntry(actor, file.AccountID, model.AuditDownload)
	audit.FileID = file.ID
	if err := s.database.RecordDownload(ctx, file.ID, audit); err != nil {
		body.Close()
		return nil, storeErr("recording download", err)
	}
	file.DownloadCount++

	s.logger.Debug("file downloaded", "file", file.ID, "by", actor.Identity.String())
	return &Download{File: file, Body: body}, nil
}

// DownloadPublic opens a shared file by its public token. No identity is
// involved, so the download is counted but not audited.
func (s *DropService) DownloadPublic(ctx context.Context, token string) (*Download, error) {
	if token == "" {
		return nil, notFoundErr("public file")
	}
	file, err := s.database.GetFileByPublicToken(ctx, token)
	if err != nil {
		return nil, storeErr("finding public file", err)
	}
	if file == nil {
		return nil, notFoundErr("public file")
	}

	body, err := s.openContent(file)
	if err != nil {
		return nil, err
	}
	if err := s.database.RecordDownload(ctx, file.ID, nil); err != nil {
		body.Close()
		return nil, storeErr("recording download", err)
	}
	file.DownloadCount++

	s.logger.Debug("public file downloaded", "file", file.ID)
	return &Download{File: file, Body: body}, nil
}

// openContent returns the file's plaintext. Encrypted files are decrypted
// and checked in memory; plaintext files are verified against the checksum
// as they are read.
func (s *DropService) openContent(file *model.File) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(file.Path)
	if err != nil {
		return nil, storeErr("opening blob", err)
	}
	if !file.Encrypted {
		return &verifyingReader{rc: rc, want: file.Checksum, hash: sha256.New()}, nil
	}
	defer rc.Close()

	if s.encryptor == nil {
		return nil, fmt.Errorf("%w: file %s is encrypted but no encryptor is configured", ErrDependency, file.ID)
	}
	key, ok := s.encryptor.AccountKey(file.AccountID)
	if !ok {
		return nil, fmt.Errorf("%w: file %s is encrypted but no master key is configured", ErrDependency, file.ID)
	}

	sealed, err := io.ReadAll(rc)
	if err != nil {
		return nil, storeErr("reading blob", err)
	}
	plaintext, err := s.encryptor.Decrypt(sealed, key)
	if err != nil {
		if !errors.Is(err, ErrIntegrity) {
			err = fmt.Errorf("%w: %w", ErrIntegrity, err)
		}
		return nil, fmt.Errorf("decrypting file %s: %w", file.ID, err)
	}
	if checksum(plaintext) != file.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for file %s", ErrIntegrity, file.ID)
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// verifyingReader returns ErrIntegrity in place of io.EOF when the content
// read does not hash to want.
type verifyingReader struct {
	rc   io.ReadCloser
	want string
	hash hash.Hash
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	v.hash.Write(p[:n])
	if err == io.EOF && hex.EncodeToString(v.hash.Sum(nil)) != v.want {
		return n, fmt.Errorf("%w: checksum mismatch", ErrIntegrity)
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.rc.Close()
}
