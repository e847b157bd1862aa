package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/repository"
)

// ManifestService builds the portal landing payload: the token holder's
// identity and organization plus every project in scope, each annotated with
// the holder's unread message count.
type ManifestService struct {
	access      *AccessService
	tokens      *TokenService
	messages    *MessageService
	orgRepo     repository.OrganizationRepository
	projectRepo repository.ProjectRepository
}

func NewManifestService(
	access *AccessService,
	tokens *TokenService,
	messages *MessageService,
	orgRepo repository.OrganizationRepository,
	projectRepo repository.ProjectRepository,
) *ManifestService {
	return &ManifestService{
		access:      access,
		tokens:      tokens,
		messages:    messages,
		orgRepo:     orgRepo,
		projectRepo: projectRepo,
	}
}

// GetManifest resolves the token, records the view, and assembles the
// manifest. Unread counts are computed per project concurrently; projects
// come back newest-first.
func (s *ManifestService) GetManifest(ctx context.Context, tokenValue string) (*model.Manifest, error) {
	grant, err := s.access.ResolveToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	s.tokens.Touch(ctx, grant.Token.ID)

	org, err := s.orgRepo.FindByID(ctx, grant.OrganizationID())
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if org == nil {
		return nil, apperrors.Internal("organization record missing")
	}

	projects, err := s.projectRepo.FindByOrganizationID(ctx, grant.OrganizationID())
	if err != nil {
		return nil, apperrors.Database(err)
	}

	summaries := make([]model.ProjectSummary, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i := range projects {
		g.Go(func() error {
			unread, err := s.messages.UnreadCount(gctx, projects[i].ID, model.RoleClient, grant.Identity.ID)
			if err != nil {
				return err
			}
			summaries[i] = model.ProjectSummary{
				ID:          projects[i].ID,
				Name:        projects[i].Name,
				Status:      projects[i].Status,
				UnreadCount: unread,
				CreatedAt:   projects[i].CreatedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.Manifest{
		Identity:     grant.Identity,
		Organization: org,
		Projects:     summaries,
	}, nil
}
