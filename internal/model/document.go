package model

import (
	"time"
)

// ContractDocument is a generated document attached either to a project or to
// an organization, never both. FilePath stays null until the asynchronous
// generation step completes; a null path is "not ready", not "not found".
type ContractDocument struct {
	ID             string       `db:"id" json:"id"`
	ProjectID      *string      `db:"project_id" json:"projectId,omitempty"`
	OrganizationID *string      `db:"organization_id" json:"organizationId,omitempty"`
	DocType        DocumentType `db:"doc_type" json:"docType"`
	Title          string       `db:"title" json:"title"`
	FilePath       *string      `db:"file_path" json:"-"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
}

// Ready reports whether the document's file has been generated.
func (d *ContractDocument) Ready() bool {
	return d.FilePath != nil && *d.FilePath != ""
}
