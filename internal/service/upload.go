package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/storage"
	"github.com/atelierhq/portal-server-go/internal/util"
)

// allowedUploadTypes is the closed set of MIME types the portal accepts.
var allowedUploadTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"text/plain": true,
	"text/csv":   true,
	"application/zip": true,
}

// UploadService stores project file uploads: blob first, metadata row second,
// with a compensating blob delete when the insert fails so no orphaned blob
// is ever reachable through the API.
type UploadService struct {
	uploadRepo repository.UploadRepository
	blobs      storage.BlobStore
	config     *config.Config
}

func NewUploadService(uploadRepo repository.UploadRepository, blobs storage.BlobStore, cfg *config.Config) *UploadService {
	return &UploadService{
		uploadRepo: uploadRepo,
		blobs:      blobs,
		config:     cfg,
	}
}

// UploadPage is one page of a project's uploads, newest-first.
type UploadPage struct {
	Uploads []model.Upload `json:"uploads"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// ListUploads returns a page of the project's uploads newest-first.
func (s *UploadService) ListUploads(ctx context.Context, projectID string, limit, offset int) (*UploadPage, error) {
	if limit <= 0 || limit > config.UploadPageLimit {
		limit = config.UploadPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	uploads, err := s.uploadRepo.FindByProjectID(ctx, projectID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	total, err := s.uploadRepo.CountByProjectID(ctx, projectID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	return &UploadPage{Uploads: uploads, Total: total, Limit: limit, Offset: offset}, nil
}

// CreateUpload validates the file, writes the blob, then inserts the
// metadata row. The caller has already authorized the project.
func (s *UploadService) CreateUpload(ctx context.Context, projectID string, role model.AuthorRole, uploaderID *string, fileName, mimeType string, sizeBytes int64, r io.Reader) (*model.Upload, error) {
	if sizeBytes <= 0 {
		return nil, apperrors.InvalidInput("file", "file is empty")
	}
	if sizeBytes > s.config.UploadMaxBytes {
		return nil, apperrors.InvalidInput("file", fmt.Sprintf("file exceeds the %d byte limit", s.config.UploadMaxBytes))
	}
	if !allowedUploadTypes[mimeType] {
		return nil, apperrors.InvalidInput("file", "file type is not allowed")
	}

	safeName := util.SanitizeFileName(fileName)
	objectPath := fmt.Sprintf("projects/%s/uploads/%d-%s-%s",
		projectID, time.Now().Unix(), uuid.NewString()[:8], safeName)

	if err := s.blobs.Write(ctx, objectPath, mimeType, r); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to store file", err)
	}

	upload, err := s.uploadRepo.Create(ctx, model.CreateUploadParams{
		ProjectID:      projectID,
		UploadedByRole: role,
		UploadedByID:   uploaderID,
		FileName:       safeName,
		StoragePath:    objectPath,
		SizeBytes:      sizeBytes,
		MimeType:       mimeType,
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, objectPath); delErr != nil {
			log.Error().Err(delErr).Str("path", objectPath).Msg("failed to delete orphaned blob")
		}
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("uploadId", upload.ID).
		Str("projectId", projectID).
		Str("role", string(role)).
		Int64("sizeBytes", sizeBytes).
		Msg("file uploaded")

	return upload, nil
}

// SignedDownloadURL returns a short-lived direct download URL for an upload
// the caller has already authorized.
func (s *UploadService) SignedDownloadURL(upload *model.Upload) (string, error) {
	url, err := s.blobs.SignedDownloadURL(upload.StoragePath, s.config.SignedURLTTL())
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "failed to sign download URL", err)
	}
	return url, nil
}
