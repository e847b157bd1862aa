package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/util"
)

// TokenService manages the portal token lifecycle. Issuance enforces the
// single-active-token rule: issuing for an identity revokes every token that
// identity already holds, atomically with the insert.
type TokenService struct {
	tokenRepo    repository.TokenRepository
	identityRepo repository.IdentityRepository
	config       *config.Config
}

func NewTokenService(tokenRepo repository.TokenRepository, identityRepo repository.IdentityRepository, cfg *config.Config) *TokenService {
	return &TokenService{
		tokenRepo:    tokenRepo,
		identityRepo: identityRepo,
		config:       cfg,
	}
}

// Issue generates a fresh token for the identity, revoking any active ones,
// and returns the token together with its portal URL.
func (s *TokenService) Issue(ctx context.Context, identityID string) (*model.IssuedToken, error) {
	identity, err := s.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if identity == nil {
		return nil, apperrors.InvalidInput("identityId", "identity not found")
	}

	value, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("failed to generate token").WithCause(err)
	}

	token, err := s.tokenRepo.Issue(ctx, identityID, value)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("tokenId", token.ID).
		Str("identityId", identityID).
		Msg("portal token issued")

	return &model.IssuedToken{
		Token: token,
		URL:   s.config.PortalURL(value),
	}, nil
}

// Revoke marks the token revoked. Revoking an already-revoked token is a
// no-op and not an error.
func (s *TokenService) Revoke(ctx context.Context, tokenID string) error {
	token, err := s.tokenRepo.FindByID(ctx, tokenID)
	if err != nil {
		return apperrors.Database(err)
	}
	if token == nil {
		return apperrors.InvalidInput("tokenId", "token not found")
	}
	if !token.Active() {
		return nil
	}

	if err := s.tokenRepo.Revoke(ctx, tokenID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("tokenId", tokenID).
		Str("identityId", token.IdentityID).
		Msg("portal token revoked")
	return nil
}

// Status reports the active token for an identity, including the portal URL
// and usage counters, for the operator dashboard.
func (s *TokenService) Status(ctx context.Context, identityID string) (*model.TokenStatus, error) {
	identity, err := s.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if identity == nil {
		return nil, apperrors.InvalidInput("identityId", "identity not found")
	}

	token, err := s.tokenRepo.FindActiveByIdentityID(ctx, identityID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if token == nil {
		return &model.TokenStatus{IdentityID: identityID, Active: false}, nil
	}

	return &model.TokenStatus{
		IdentityID:   identityID,
		Active:       true,
		TokenID:      token.ID,
		URL:          s.config.PortalURL(token.TokenValue),
		ViewCount:    token.ViewCount,
		CreatedAt:    &token.CreatedAt,
		LastViewedAt: token.LastViewedAt,
	}, nil
}

// Touch records a portal view: bumps the view counter and the last-viewed
// timestamp. Failures are logged but never block the request.
func (s *TokenService) Touch(ctx context.Context, tokenID string) {
	if err := s.tokenRepo.Touch(ctx, tokenID); err != nil {
		log.Warn().Err(err).Str("tokenId", tokenID).Msg("failed to record portal view")
	}
}
