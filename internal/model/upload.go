package model

import (
	"time"
)

// Upload is an ad-hoc file attached to a project. The blob and the metadata
// row are created together; a failed insert deletes the blob.
type Upload struct {
	ID             string     `db:"id" json:"id"`
	ProjectID      string     `db:"project_id" json:"projectId"`
	UploadedByRole AuthorRole `db:"uploaded_by_role" json:"uploadedByRole"`
	UploadedByID   *string    `db:"uploaded_by_id" json:"uploadedById,omitempty"`
	FileName       string     `db:"file_name" json:"fileName"`
	StoragePath    string     `db:"storage_path" json:"-"`
	SizeBytes      int64      `db:"size_bytes" json:"sizeBytes"`
	MimeType       string     `db:"mime_type" json:"mimeType"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

type CreateUploadParams struct {
	ProjectID      string
	UploadedByRole AuthorRole
	UploadedByID   *string
	FileName       string
	StoragePath    string
	SizeBytes      int64
	MimeType       string
}
