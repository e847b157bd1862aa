package service

import (
	"context"

	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/storage"
)

// DocumentService serves operator-curated contract documents. Documents can
// exist before their file does; those list normally but cannot be
// downloaded yet.
type DocumentService struct {
	documentRepo repository.DocumentRepository
	blobs        storage.BlobStore
	config       *config.Config
}

func NewDocumentService(documentRepo repository.DocumentRepository, blobs storage.BlobStore, cfg *config.Config) *DocumentService {
	return &DocumentService{
		documentRepo: documentRepo,
		blobs:        blobs,
		config:       cfg,
	}
}

// ListForOrganization returns every document visible to the organization:
// documents attached to the organization itself plus documents attached to
// any of its projects.
func (s *DocumentService) ListForOrganization(ctx context.Context, organizationID string) ([]model.ContractDocument, error) {
	docs, err := s.documentRepo.FindForOrganization(ctx, organizationID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return docs, nil
}

// SignedDownloadURL returns a short-lived download URL for a document the
// caller has already authorized. A document whose file has not been
// attached yet is reported as not ready, never as missing.
func (s *DocumentService) SignedDownloadURL(doc *model.ContractDocument) (string, error) {
	if !doc.Ready() {
		return "", apperrors.NotReady("Document")
	}

	url, err := s.blobs.SignedDownloadURL(*doc.FilePath, s.config.SignedURLTTL())
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to sign download URL", err)
	}
	return url, nil
}
