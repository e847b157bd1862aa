package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/database"
	"github.com/atelierhq/portal-server-go/internal/model"
)

// TokenRepository handles portal token persistence. Tokens are never deleted;
// superseded and revoked rows stay behind as the audit trail.
type TokenRepository interface {
	FindByID(ctx context.Context, id string) (*model.PortalToken, error)
	FindByValue(ctx context.Context, tokenValue string) (*model.PortalToken, error)
	FindActiveByIdentityID(ctx context.Context, identityID string) (*model.PortalToken, error)
	// Issue revokes every active token for the identity and inserts a fresh
	// one in a single transaction. The identity row is locked first so two
	// concurrent issues serialize instead of each revoking only the other's
	// committed tokens. A failure after the revoke leaves the identity with
	// no active token, which fails safe.
	Issue(ctx context.Context, identityID, tokenValue string) (*model.PortalToken, error)
	Revoke(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
}

type tokenRepo struct {
	db *database.DB
}

func NewTokenRepository(db *database.DB) TokenRepository {
	return &tokenRepo{db: db}
}

func (r *tokenRepo) FindByID(ctx context.Context, id string) (*model.PortalToken, error) {
	var t model.PortalToken
	err := r.db.GetContext(ctx, &t, `SELECT * FROM portal_tokens WHERE id = $1`, id)
	return HandleNotFound(&t, err)
}

func (r *tokenRepo) FindByValue(ctx context.Context, tokenValue string) (*model.PortalToken, error) {
	var t model.PortalToken
	err := r.db.GetContext(ctx, &t, `SELECT * FROM portal_tokens WHERE token_value = $1`, tokenValue)
	return HandleNotFound(&t, err)
}

func (r *tokenRepo) FindActiveByIdentityID(ctx context.Context, identityID string) (*model.PortalToken, error) {
	var t model.PortalToken
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM portal_tokens
		WHERE identity_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, identityID)
	return HandleNotFound(&t, err)
}

func (r *tokenRepo) Issue(ctx context.Context, identityID, tokenValue string) (*model.PortalToken, error) {
	var t model.PortalToken
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var lockedID string
		if err := tx.GetContext(ctx, &lockedID, `
			SELECT id FROM identities WHERE id = $1 FOR UPDATE
		`, identityID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE portal_tokens SET revoked_at = $2
			WHERE identity_id = $1 AND revoked_at IS NULL
		`, identityID, time.Now()); err != nil {
			return err
		}
		return tx.GetContext(ctx, &t, `
			INSERT INTO portal_tokens (identity_id, token_value)
			VALUES ($1, $2)
			RETURNING *
		`, identityID, tokenValue)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE portal_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, time.Now())
	return err
}

func (r *tokenRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE portal_tokens SET
			view_count = view_count + 1,
			last_viewed_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}
