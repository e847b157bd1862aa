package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/model"
)

type IdentityRepository interface {
	FindByID(ctx context.Context, id string) (*model.Identity, error)
}

type identityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepository(db *sqlx.DB) IdentityRepository {
	return &identityRepo{db: db}
}

func (r *identityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	var ident model.Identity
	err := r.db.GetContext(ctx, &ident, `SELECT * FROM identities WHERE id = $1`, id)
	return HandleNotFound(&ident, err)
}

type OrganizationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Organization, error)
}

type organizationRepo struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sqlx.DB) OrganizationRepository {
	return &organizationRepo{db: db}
}

func (r *organizationRepo) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	err := r.db.GetContext(ctx, &org, `SELECT * FROM organizations WHERE id = $1`, id)
	return HandleNotFound(&org, err)
}
