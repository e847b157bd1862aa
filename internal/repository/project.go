package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/model"
)

type ProjectRepository interface {
	FindByID(ctx context.Context, id string) (*model.Project, error)
	FindByOrganizationID(ctx context.Context, organizationID string) ([]model.Project, error)
}

type projectRepo struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) ProjectRepository {
	return &projectRepo{db: db}
}

func (r *projectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := r.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id)
	return HandleNotFound(&p, err)
}

func (r *projectRepo) FindByOrganizationID(ctx context.Context, organizationID string) ([]model.Project, error) {
	var projects []model.Project
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, organizationID)
	return projects, err
}
