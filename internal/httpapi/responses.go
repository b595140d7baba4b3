package httpapi

import (
	"time"

	"darkdrop/internal/model"
)

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type membershipResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Role   string `json:"role"`
}

type accountResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Domain            string    `json:"domain"`
	Status            string    `json:"status"`
	StorageUsed       int64     `json:"storageUsed"`
	StorageQuota      int64     `json:"storageQuota"`
	EncryptionEnabled bool      `json:"encryptionEnabled"`
	CreatedAt         time.Time `json:"createdAt"`
}

type fileResponse struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	Name          string    `json:"name"`
	StoredName    string    `json:"storedName"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimeType"`
	Type          string    `json:"type"`
	Folder        string    `json:"folder"`
	Checksum      string    `json:"checksum"`
	Encrypted     bool      `json:"encrypted"`
	IsPublic      bool      `json:"isPublic"`
	DownloadCount int64     `json:"downloadCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type versionResponse struct {
	ID            string    `json:"id"`
	FileID        string    `json:"fileId"`
	VersionNumber int64     `json:"versionNumber"`
	Size          int64     `json:"size"`
	Checksum      string    `json:"checksum"`
	MimeType      string    `json:"mimeType"`
	Encrypted     bool      `json:"encrypted"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

type auditResponse struct {
	ID              string    `json:"id"`
	Action          string    `json:"action"`
	PerformedBy     string    `json:"performedBy"`
	PerformedByType string    `json:"performedByType"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	UserAgent       string    `json:"userAgent,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toUser(u *model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

func toMemberships(ms []*model.Membership) []membershipResponse {
	out := make([]membershipResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, membershipResponse{ID: m.AccountID, Name: m.AccountName, Domain: m.Domain, Role: string(m.Role)})
	}
	return out
}

func toAccount(a *model.Account) accountResponse {
	return accountResponse{
		ID:                a.ID,
		Name:              a.Name,
		Domain:            a.Domain,
		Status:            string(a.Status),
		StorageUsed:       a.StorageUsed,
		StorageQuota:      a.StorageQuota,
		EncryptionEnabled: a.EncryptionEnabled,
		CreatedAt:         a.CreatedAt,
	}
}

func toFile(f *model.File) fileResponse {
	return fileResponse{
		ID:            f.ID,
		AccountID:     f.AccountID,
		Name:          f.OriginalName,
		StoredName:    f.Name,
		Size:          f.Size,
		MimeType:      f.MimeType,
		Type:          string(f.Type),
		Folder:        f.Folder,
		Checksum:      f.Checksum,
		Encrypted:     f.Encrypted,
		IsPublic:      f.IsPublic,
		DownloadCount: f.DownloadCount,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

func toFiles(fs []*model.File) []fileResponse {
	out := make([]fileResponse, 0, len(fs))
	for _, f := range fs {
		out = append(out, toFile(f))
	}
	return out
}

func toVersion(v *model.FileVersion) versionResponse {
	return versionResponse{
		ID:            v.ID,
		FileID:        v.FileID,
		VersionNumber: v.VersionNumber,
		Size:          v.Size,
		Checksum:      v.Checksum,
		MimeType:      v.MimeType,
		Encrypted:     v.Encrypted,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}

func toVersions(vs []*model.FileVersion) []versionResponse {
	out := make([]versionResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, toVersion(v))
	}
	return out
}

func toAudit(es []*model.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(es))
	for _, e := range es {
		out = append(out, auditResponse{
			ID:              e.ID,
			Action:          string(e.Action),
			PerformedBy:     e.PerformedBy,
			PerformedByType: string(e.PerformedByType),
			IPAddress:       e.IPAddress,
			UserAgent:       e.UserAgent,
			CreatedAt:       e.CreatedAt,
		})
	}
	return out
}
