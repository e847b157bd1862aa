package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/audit"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/util"
)

// Grant is a resolved portal token: the token row plus the identity it
// belongs to. The identity's organization is the scope every resource check
// compares against.
type Grant struct {
	Token    *model.PortalToken
	Identity *model.Identity
}

func (g *Grant) OrganizationID() string {
	return g.Identity.OrganizationID
}

// AccessService is the sole authority on portal authorization. Every
// operation resolves the presented token here and validates the target
// resource here; no other component re-derives identity from a token or
// compares organizations inline.
//
// Denials are deliberately low-information: a resource that exists in
// another organization and a resource that does not exist produce the same
// error, so a token holder cannot probe for resource existence across
// tenants. The true reason goes to the server log only.
type AccessService struct {
	tokenRepo    repository.TokenRepository
	identityRepo repository.IdentityRepository
	projectRepo  repository.ProjectRepository
	invoiceRepo  repository.InvoiceRepository
	uploadRepo   repository.UploadRepository
	documentRepo repository.DocumentRepository
}

func NewAccessService(
	tokenRepo repository.TokenRepository,
	identityRepo repository.IdentityRepository,
	projectRepo repository.ProjectRepository,
	invoiceRepo repository.InvoiceRepository,
	uploadRepo repository.UploadRepository,
	documentRepo repository.DocumentRepository,
) *AccessService {
	return &AccessService{
		tokenRepo:    tokenRepo,
		identityRepo: identityRepo,
		projectRepo:  projectRepo,
		invoiceRepo:  invoiceRepo,
		uploadRepo:   uploadRepo,
		documentRepo: documentRepo,
	}
}

// ResolveToken looks up the presented token value and resolves its identity.
// Missing, revoked, and orphaned tokens are indistinguishable to the caller.
func (s *AccessService) ResolveToken(ctx context.Context, tokenValue string) (*Grant, error) {
	if tokenValue == "" {
		return nil, apperrors.InvalidToken()
	}

	token, err := s.tokenRepo.FindByValue(ctx, tokenValue)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if token == nil {
		log.Warn().Str("token", util.MaskToken(tokenValue)).Msg("unknown portal token")
		return nil, apperrors.InvalidToken()
	}
	if !token.Active() {
		log.Warn().
			Str("tokenId", token.ID).
			Time("revokedAt", *token.RevokedAt).
			Msg("revoked portal token presented")
		return nil, apperrors.InvalidToken()
	}

	identity, err := s.identityRepo.FindByID(ctx, token.IdentityID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if identity == nil {
		log.Error().
			Str("tokenId", token.ID).
			Str("identityId", token.IdentityID).
			Msg("orphaned portal token: identity record missing")
		return nil, apperrors.InvalidToken()
	}

	return &Grant{Token: token, Identity: identity}, nil
}

// ValidateProject resolves the token and checks that the project belongs to
// the holder's organization.
func (s *AccessService) ValidateProject(ctx context.Context, tokenValue, projectID string) (*Grant, *model.Project, error) {
	grant, err := s.ResolveToken(ctx, tokenValue)
	if err != nil {
		return nil, nil, err
	}

	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if project == nil || project.OrganizationID != grant.OrganizationID() {
		s.logDenied(ctx, grant, "project", projectID)
		return nil, nil, apperrors.AccessDenied()
	}

	return grant, project, nil
}

// ValidateOrganization resolves the token and compares the organization id
// directly. Used for resources attached at the organization level.
func (s *AccessService) ValidateOrganization(ctx context.Context, tokenValue, organizationID string) (*Grant, error) {
	grant, err := s.ResolveToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if organizationID == "" || organizationID != grant.OrganizationID() {
		s.logDenied(ctx, grant, "organization", organizationID)
		return nil, apperrors.AccessDenied()
	}

	return grant, nil
}

// ValidateInvoice checks invoice access through the invoice's organization.
func (s *AccessService) ValidateInvoice(ctx context.Context, tokenValue, invoiceID string) (*Grant, *model.Invoice, error) {
	grant, err := s.ResolveToken(ctx, tokenValue)
	if err != nil {
		return nil, nil, err
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if invoice == nil || invoice.OrganizationID != grant.OrganizationID() {
		s.logDenied(ctx, grant, "invoice", invoiceID)
		return nil, nil, apperrors.AccessDenied()
	}

	return grant, invoice, nil
}

// ValidateUpload checks upload access transitively through its project.
func (s *AccessService) ValidateUpload(ctx context.Context, tokenValue, uploadID string) (*Grant, *model.Upload, error) {
	grant, err := s.ResolveToken(ctx, tokenValue)
	if err != nil {
		return nil, nil, err
	}

	upload, err := s.uploadRepo.FindByID(ctx, uploadID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if upload == nil {
		s.logDenied(ctx, grant, "upload", uploadID)
		return nil, nil, apperrors.AccessDenied()
	}

	project, err := s.projectRepo.FindByID(ctx, upload.ProjectID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if project == nil || project.OrganizationID != grant.OrganizationID() {
		s.logDenied(ctx, grant, "upload", uploadID)
		return nil, nil, apperrors.AccessDenied()
	}

	return grant, upload, nil
}

// ValidateDocument checks document access with branching scope: project
// scope when the document hangs off a project, organization scope when it
// hangs off the organization directly. A document with neither reference is
// always denied; there is no default-allow path.
func (s *AccessService) ValidateDocument(ctx context.Context, tokenValue, documentID string) (*Grant, *model.ContractDocument, error) {
	grant, err := s.ResolveToken(ctx, tokenValue)
	if err != nil {
		return nil, nil, err
	}

	doc, err := s.documentRepo.FindByID(ctx, documentID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if doc == nil {
		s.logDenied(ctx, grant, "document", documentID)
		return nil, nil, apperrors.AccessDenied()
	}

	switch {
	case doc.ProjectID != nil:
		project, err := s.projectRepo.FindByID(ctx, *doc.ProjectID)
		if err != nil {
			return nil, nil, apperrors.Database(err)
		}
		if project == nil || project.OrganizationID != grant.OrganizationID() {
			s.logDenied(ctx, grant, "document", documentID)
			return nil, nil, apperrors.AccessDenied()
		}

	case doc.OrganizationID != nil:
		if *doc.OrganizationID != grant.OrganizationID() {
			s.logDenied(ctx, grant, "document", documentID)
			return nil, nil, apperrors.AccessDenied()
		}

	default:
		log.Error().Str("documentId", doc.ID).Msg("document has neither project nor organization reference")
		return nil, nil, apperrors.AccessDenied()
	}

	return grant, doc, nil
}

func (s *AccessService) logDenied(ctx context.Context, grant *Grant, resourceType, resourceID string) {
	audit.Log(ctx, audit.Event{
		Type:           audit.EventAccessDenied,
		IdentityID:     grant.Identity.ID,
		OrganizationID: grant.OrganizationID(),
		ResourceID:     resourceID,
		Details: map[string]interface{}{
			"resourceType": resourceType,
		},
	})
}
