package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/model"
)

type DocumentRepository interface {
	FindByID(ctx context.Context, id string) (*model.ContractDocument, error)
	// FindForOrganization returns documents attached to the organization
	// itself plus documents attached to any of its projects.
	FindForOrganization(ctx context.Context, organizationID string) ([]model.ContractDocument, error)
	FindByProjectID(ctx context.Context, projectID string) ([]model.ContractDocument, error)
}

type documentRepo struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) FindByID(ctx context.Context, id string) (*model.ContractDocument, error) {
	var doc model.ContractDocument
	err := r.db.GetContext(ctx, &doc, `SELECT * FROM contract_documents WHERE id = $1`, id)
	return HandleNotFound(&doc, err)
}

func (r *documentRepo) FindForOrganization(ctx context.Context, organizationID string) ([]model.ContractDocument, error) {
	var docs []model.ContractDocument
	err := r.db.SelectContext(ctx, &docs, `
		SELECT d.* FROM contract_documents d
		LEFT JOIN projects p ON p.id = d.project_id
		WHERE d.organization_id = $1 OR p.organization_id = $1
		ORDER BY d.created_at DESC
	`, organizationID)
	return docs, err
}

func (r *documentRepo) FindByProjectID(ctx context.Context, projectID string) ([]model.ContractDocument, error) {
	var docs []model.ContractDocument
	err := r.db.SelectContext(ctx, &docs, `
		SELECT * FROM contract_documents
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	return docs, err
}
