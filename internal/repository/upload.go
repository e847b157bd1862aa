package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/model"
)

type UploadRepository interface {
	FindByID(ctx context.Context, id string) (*model.Upload, error)
	FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]model.Upload, error)
	CountByProjectID(ctx context.Context, projectID string) (int, error)
	Create(ctx context.Context, params model.CreateUploadParams) (*model.Upload, error)
}

type uploadRepo struct {
	db *sqlx.DB
}

func NewUploadRepository(db *sqlx.DB) UploadRepository {
	return &uploadRepo{db: db}
}

func (r *uploadRepo) FindByID(ctx context.Context, id string) (*model.Upload, error) {
	var u model.Upload
	err := r.db.GetContext(ctx, &u, `SELECT * FROM uploads WHERE id = $1`, id)
	return HandleNotFound(&u, err)
}

func (r *uploadRepo) FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]model.Upload, error) {
	var uploads []model.Upload
	err := r.db.SelectContext(ctx, &uploads, `
		SELECT * FROM uploads
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, projectID, limit, offset)
	return uploads, err
}

func (r *uploadRepo) CountByProjectID(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM uploads WHERE project_id = $1
	`, projectID)
	return count, err
}

func (r *uploadRepo) Create(ctx context.Context, params model.CreateUploadParams) (*model.Upload, error) {
	var u model.Upload
	err := r.db.GetContext(ctx, &u, `
		INSERT INTO uploads
			(project_id, uploaded_by_role, uploaded_by_id, file_name,
			 storage_path, size_bytes, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ProjectID, params.UploadedByRole, params.UploadedByID,
		params.FileName, params.StoragePath, params.SizeBytes, params.MimeType)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
