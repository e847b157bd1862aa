package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/model"
)

type MessageRepository interface {
	// FindByProjectID returns messages newest-first for backward pagination
	// from "now"; callers reverse for display order.
	FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]model.Message, error)
	CountByProjectID(ctx context.Context, projectID string) (int, error)
	// CountUnread counts messages authored by authorRole after the watermark.
	CountUnread(ctx context.Context, projectID string, authorRole model.AuthorRole, after time.Time) (int, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, projectID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountByProjectID(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE project_id = $1
	`, projectID)
	return count, err
}

func (r *messageRepo) CountUnread(ctx context.Context, projectID string, authorRole model.AuthorRole, after time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE project_id = $1 AND author_role = $2 AND created_at > $3
	`, projectID, authorRole, after)
	return count, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (project_id, author_role, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ProjectID, params.AuthorRole, params.AuthorID, params.Body)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Read-State Repository

type ReadStateRepository interface {
	Find(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error)
	// Upsert moves the watermark to now. Each (project, role, reader) row is
	// independent, so marking read as one role never touches the other's.
	Upsert(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error)
}

type readStateRepo struct {
	db *sqlx.DB
}

func NewReadStateRepository(db *sqlx.DB) ReadStateRepository {
	return &readStateRepo{db: db}
}

func (r *readStateRepo) Find(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error) {
	var rs model.ReadState
	err := r.db.GetContext(ctx, &rs, `
		SELECT * FROM read_states
		WHERE project_id = $1 AND role = $2 AND reader_id = $3
	`, projectID, role, readerID)
	return HandleNotFound(&rs, err)
}

func (r *readStateRepo) Upsert(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error) {
	var rs model.ReadState
	// now() rather than the application clock: message created_at comes from
	// the database, and the watermark comparison only works if both sides
	// share one clock.
	err := r.db.GetContext(ctx, &rs, `
		INSERT INTO read_states (project_id, role, reader_id, last_read_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (project_id, role, reader_id)
		DO UPDATE SET last_read_at = now()
		RETURNING *
	`, projectID, role, readerID)
	if err != nil {
		return nil, err
	}
	return &rs, nil
}
