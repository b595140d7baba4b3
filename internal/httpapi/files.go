package httpapi

import (
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "no file uploaded")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		// Generic part type; let the service infer from the extension.
		mimeType = ""
	}

	res, err := s.service.UploadFile(r.Context(), actorFrom(r.Context()), drop.UploadRequest{
		AccountID:    chi.URLParam(r, "accountID"),
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Type:         model.Bucket(r.FormValue("type")),
		Folder:       r.FormValue("folder"),
		Content:      file,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.uploaded.Add(float64(res.File.Size))

	body := map[string]any{
		"fileId":   res.File.ID,
		"file":     toFile(res.File),
		"name":     res.File.OriginalName,
		"size":     res.File.Size,
		"mimeType": res.File.MimeType,
		"checksum": res.File.Checksum,
	}
	if res.Version != nil {
		body["previousVersion"] = toVersion(res.Version)
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.DownloadFile(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.streamDownload(w, r, d)
}

func (s *Server) handlePublicDownload(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.DownloadPublic(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.streamDownload(w, r, d)
}

// streamDownload copies the file body to the client. A failure after the
// headers are sent can only be logged.
func (s *Server) streamDownload(w http.ResponseWriter, r *http.Request, d *drop.Download) {
	defer d.Body.Close()

	w.Header().Set("Content-Type", d.File.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.File.OriginalName}))
	w.Header().Set("X-Content-Checksum", d.File.Checksum)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, d.Body); err != nil {
		s.logger.LogAttrs(r.Context(), slog.LevelError, "download interrupted",
			slog.String("file", d.File.ID),
			slog.String("error", err.Error()),
		)
	}
}

func listOptions(r *http.Request) drop.ListOptions {
	return drop.ListOptions{
		Folder: r.URL.Query().Get("folder"),
		Type:   model.Bucket(r.URL.Query().Get("type")),
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.ListFiles(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), listOptions(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": toFiles(files)})
}

func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.SearchFiles(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), r.URL.Query().Get("q"), listOptions(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": toFiles(files)})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteFile(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}

func (s *Server) handleShareFile(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.ShareFile(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicUrl": res.URL, "token": res.Token})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.service.ListVersions(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": toVersions(versions)})
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	file, snapshot, err := s.service.RestoreVersion(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":     toFile(file),
		"snapshot": toVersion(snapshot),
	})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.AuditLog(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAudit(entries)})
}
