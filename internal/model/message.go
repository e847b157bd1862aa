package model

import (
	"encoding/json"
	"time"
)

// Message is one entry in a project's append-only message log. There is no
// edit or retraction.
type Message struct {
	ID         string     `db:"id" json:"id"`
	ProjectID  string     `db:"project_id" json:"projectId"`
	AuthorRole AuthorRole `db:"author_role" json:"authorRole"`
	AuthorID   *string    `db:"author_id" json:"authorId,omitempty"`
	Body       string     `db:"body" json:"body"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// ToEventData returns the JSON payload broadcast for a freshly posted message.
func (m *Message) ToEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":         m.ID,
		"projectId":  m.ProjectID,
		"authorRole": m.AuthorRole,
		"body":       m.Body,
		"createdAt":  m.CreatedAt,
	})
	return data
}

type CreateMessageParams struct {
	ProjectID  string
	AuthorRole AuthorRole
	AuthorID   *string
	Body       string
}

// ReadState is the per-(project, role, reader) watermark used to compute
// unread counts. A missing row means everything is unread.
type ReadState struct {
	ProjectID  string     `db:"project_id" json:"projectId"`
	Role       AuthorRole `db:"role" json:"role"`
	ReaderID   string     `db:"reader_id" json:"readerId"`
	LastReadAt time.Time  `db:"last_read_at" json:"lastReadAt"`
}
