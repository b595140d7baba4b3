package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

type toolDef struct {
	Tool
	run func(ctx context.Context, args json.RawMessage) (any, error)
}

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func bucketProp(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        []string{string(model.BucketAgents), string(model.BucketUsers), string(model.BucketShared)},
		"description": description,
	}
}

// decodeArgs unmarshals tool arguments, mapping malformed input to a
// validation error.
func decodeArgs(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", drop.ErrValidation, err)
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", drop.ErrValidation, name)
	}
	return nil
}

func (s *Server) account(id string) (string, error) {
	if id == "" {
		id = s.opts.DefaultAccount
	}
	if id == "" {
		return "", fmt.Errorf("%w: accountId is required (set %s or pass accountId)", drop.ErrValidation, AccountEnv)
	}
	return id, nil
}

type fileSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType"`
	Type      string    `json:"type"`
	Folder    string    `json:"folder"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"createdAt"`
}

func summarize(files []*model.File) []fileSummary {
	out := make([]fileSummary, 0, len(files))
	for _, f := range files {
		out = append(out, fileSummary{
			ID:        f.ID,
			Name:      f.OriginalName,
			Size:      f.Size,
			MimeType:  f.MimeType,
			Type:      string(f.Type),
			Folder:    f.Folder,
			Checksum:  f.Checksum,
			CreatedAt: f.CreatedAt,
		})
	}
	return out
}

type versionSummary struct {
	ID            string    `json:"id"`
	VersionNumber int64     `json:"versionNumber"`
	Size          int64     `json:"size"`
	Checksum      string    `json:"checksum"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

func summarizeVersion(v *model.FileVersion) versionSummary {
	return versionSummary{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		Size:          v.Size,
		Checksum:      v.Checksum,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}

func (s *Server) toolDefs() []toolDef {
	return []toolDef{
		{
			Tool: Tool{
				Name:        "upload_file",
				Description: "Upload a local file to DarkDrop storage",
				InputSchema: schema([]string{"filePath"}, map[string]any{
					"accountId": str("Account ID; defaults to " + AccountEnv),
					"filePath":  str("Local file path to upload"),
					"type":      bucketProp("File storage type (default agents)"),
					"folder":    str("Destination folder path (default /)"),
				}),
			},
			run: s.uploadFile,
		},
		{
			Tool: Tool{
				Name:        "download_file",
				Description: "Download a file from DarkDrop storage to a local path",
				InputSchema: schema([]string{"fileId"}, map[string]any{
					"fileId":      str("File ID to download"),
					"destination": str("Local destination path (optional)"),
				}),
			},
			run: s.downloadFile,
		},
		{
			Tool: Tool{
				Name:        "list_files",
				Description: "List files in a DarkDrop account",
				InputSchema: schema(nil, map[string]any{
					"accountId": str("Account ID; defaults to " + AccountEnv),
					"folder":    str("Folder path to list"),
					"type":      bucketProp("Filter by storage type"),
				}),
			},
			run: s.listFiles,
		},
		{
			Tool: Tool{
				Name:        "search_files",
				Description: "Search for files by name in a DarkDrop account",
				InputSchema: schema([]string{"query"}, map[string]any{
					"accountId": str("Account ID; defaults to " + AccountEnv),
					"query":     str("Search query"),
				}),
			},
			run: s.searchFiles,
		},
		{
			Tool: Tool{
				Name:        "delete_file",
				Description: "Delete a file and all of its versions",
				InputSchema: schema([]string{"fileId"}, map[string]any{
					"fileId": str("File ID to delete"),
				}),
			},
			run: s.deleteFile,
		},
		{
			Tool: Tool{
				Name:        "share_file",
				Description: "Create a public share link for a file",
				InputSchema: schema([]string{"fileId"}, map[string]any{
					"fileId": str("File ID to share"),
				}),
			},
			run: s.shareFile,
		},
		{
			Tool: Tool{
				Name:        "list_versions",
				Description: "List the earlier versions of a file, newest first",
				InputSchema: schema([]string{"fileId"}, map[string]any{
					"fileId": str("File ID"),
				}),
			},
			run: s.listVersions,
		},
		{
			Tool: Tool{
				Name:        "restore_version",
				Description: "Make an earlier version the current content of a file",
				InputSchema: schema([]string{"fileId", "versionId"}, map[string]any{
					"fileId":    str("File ID"),
					"versionId": str("Version ID to restore"),
				}),
			},
			run: s.restoreVersion,
		},
	}
}

func (s *Server) uploadFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		AccountID string `json:"accountId"`
		FilePath  string `json:"filePath"`
		Type      string `json:"type"`
		Folder    string `json:"folder"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("filePath", args.FilePath); err != nil {
		return nil, err
	}
	accountID, err := s.account(args.AccountID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(args.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", drop.ErrValidation, args.FilePath, err)
	}
	defer f.Close()

	res, err := s.service.UploadFile(ctx, s.actor, drop.UploadRequest{
		AccountID:    accountID,
		OriginalName: filepath.Base(args.FilePath),
		Type:         model.Bucket(args.Type),
		Folder:       args.Folder,
		Content:      f,
	})
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"success":  true,
		"fileId":   res.File.ID,
		"name":     res.File.OriginalName,
		"size":     res.File.Size,
		"checksum": res.File.Checksum,
	}
	if res.Version != nil {
		out["previousVersion"] = res.Version.VersionNumber
	}
	return out, nil
}

func (s *Server) downloadFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		FileID      string `json:"fileId"`
		Destination string `json:"destination"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("fileId", args.FileID); err != nil {
		return nil, err
	}

	d, err := s.service.DownloadFile(ctx, s.actor, args.FileID)
	if err != nil {
		return nil, err
	}
	defer d.Body.Close()

	dest := args.Destination
	if dest == "" {
		dir, err := s.workDir()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		dest = filepath.Join(dir, filepath.Base(d.File.OriginalName))
	}

	n, err := writeLocal(dest, d.Body)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "path": dest, "size": n}, nil
}

// writeLocal writes r to path via a temp file in the same directory, so a
// failed or corrupt download never leaves a partial file behind.
func writeLocal(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".darkdrop-download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("moving download into place: %w", err)
	}
	return n, nil
}

func (s *Server) listFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		AccountID string `json:"accountId"`
		Folder    string `json:"folder"`
		Type      string `json:"type"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	accountID, err := s.account(args.AccountID)
	if err != nil {
		return nil, err
	}
	files, err := s.service.ListFiles(ctx, s.actor, accountID, drop.ListOptions{Folder: args.Folder, Type: model.Bucket(args.Type)})
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": summarize(files)}, nil
}

func (s *Server) searchFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		AccountID string `json:"accountId"`
		Query     string `json:"query"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	accountID, err := s.account(args.AccountID)
	if err != nil {
		return nil, err
	}
	files, err := s.service.SearchFiles(ctx, s.actor, accountID, args.Query, drop.ListOptions{})
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": summarize(files)}, nil
}

func (s *Server) deleteFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		FileID string `json:"fileId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("fileId", args.FileID); err != nil {
		return nil, err
	}
	if err := s.service.DeleteFile(ctx, s.actor, args.FileID); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "message": "file deleted"}, nil
}

func (s *Server) shareFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		FileID string `json:"fileId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("fileId", args.FileID); err != nil {
		return nil, err
	}
	res, err := s.service.ShareFile(ctx, s.actor, args.FileID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "publicUrl": res.URL, "token": res.Token}, nil
}

func (s *Server) listVersions(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		FileID string `json:"fileId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("fileId", args.FileID); err != nil {
		return nil, err
	}
	versions, err := s.service.ListVersions(ctx, s.actor, args.FileID)
	if err != nil {
		return nil, err
	}
	out := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		out = append(out, summarizeVersion(v))
	}
	return map[string]any{"versions": out}, nil
}

func (s *Server) restoreVersion(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		FileID    string `json:"fileId"`
		VersionID string `json:"versionId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("fileId", args.FileID); err != nil {
		return nil, err
	}
	file, snapshot, err := s.service.RestoreVersion(ctx, s.actor, args.FileID, args.VersionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":  true,
		"file":     summarize([]*model.File{file})[0],
		"snapshot": summarizeVersion(snapshot),
	}, nil
}
