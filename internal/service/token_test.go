package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
)

func newTokenFixture() (*TokenService, *mockTokenRepo, *mockIdentityRepo) {
	tokenRepo := new(mockTokenRepo)
	identityRepo := new(mockIdentityRepo)
	cfg := &config.Config{PortalBaseURL: "https://portal.example.com"}
	return NewTokenService(tokenRepo, identityRepo, cfg), tokenRepo, identityRepo
}

func TestIssue_ReturnsTokenWithPortalURL(t *testing.T) {
	svc, tokenRepo, identityRepo := newTokenFixture()

	identityRepo.On("FindByID", mock.Anything, "ident-1").Return(testIdentity("org-1"), nil)

	var issuedValue string
	tokenRepo.On("Issue", mock.Anything, "ident-1", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			issuedValue = args.String(2)
		}).
		Return(&model.PortalToken{ID: "tok-new", IdentityID: "ident-1"}, nil)

	issued, err := svc.Issue(context.Background(), "ident-1")

	require.NoError(t, err)
	assert.Equal(t, "tok-new", issued.Token.ID)
	assert.Len(t, issuedValue, 64) // 32 random bytes hex encoded
	assert.Equal(t, "https://portal.example.com/p/"+issuedValue, issued.URL)
}

func TestIssue_UnknownIdentity(t *testing.T) {
	svc, tokenRepo, identityRepo := newTokenFixture()

	identityRepo.On("FindByID", mock.Anything, "ident-gone").Return(nil, nil)

	_, err := svc.Issue(context.Background(), "ident-gone")

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	tokenRepo.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything)
}

func TestRevoke_ActiveToken(t *testing.T) {
	svc, tokenRepo, _ := newTokenFixture()

	tokenRepo.On("FindByID", mock.Anything, "tok-1").Return(activeToken("ident-1"), nil)
	tokenRepo.On("Revoke", mock.Anything, "tok-1").Return(nil)

	err := svc.Revoke(context.Background(), "tok-1")

	require.NoError(t, err)
	tokenRepo.AssertCalled(t, "Revoke", mock.Anything, "tok-1")
}

func TestRevoke_AlreadyRevokedIsNoop(t *testing.T) {
	svc, tokenRepo, _ := newTokenFixture()

	revokedAt := time.Now().Add(-time.Hour)
	token := activeToken("ident-1")
	token.RevokedAt = &revokedAt
	tokenRepo.On("FindByID", mock.Anything, "tok-1").Return(token, nil)

	err := svc.Revoke(context.Background(), "tok-1")

	require.NoError(t, err)
	tokenRepo.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}

func TestStatus_ActiveToken(t *testing.T) {
	svc, tokenRepo, identityRepo := newTokenFixture()

	identityRepo.On("FindByID", mock.Anything, "ident-1").Return(testIdentity("org-1"), nil)
	lastViewed := time.Now().Add(-time.Minute)
	token := activeToken("ident-1")
	token.ViewCount = 7
	token.LastViewedAt = &lastViewed
	tokenRepo.On("FindActiveByIdentityID", mock.Anything, "ident-1").Return(token, nil)

	status, err := svc.Status(context.Background(), "ident-1")

	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, "https://portal.example.com/p/abc123", status.URL)
	assert.Equal(t, 7, status.ViewCount)
}

func TestStatus_NoActiveToken(t *testing.T) {
	svc, tokenRepo, identityRepo := newTokenFixture()

	identityRepo.On("FindByID", mock.Anything, "ident-1").Return(testIdentity("org-1"), nil)
	tokenRepo.On("FindActiveByIdentityID", mock.Anything, "ident-1").Return(nil, nil)

	status, err := svc.Status(context.Background(), "ident-1")

	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Empty(t, status.URL)
}
