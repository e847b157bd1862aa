package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
)

// GCSStore is the Cloud Storage implementation of BlobStore. Signed URLs use
// the V4 scheme with an explicit signer so they work outside GCE metadata
// environments.
type GCSStore struct {
	client      *storage.Client
	bucket      string
	signerEmail string
	signerKey   []byte
}

func NewGCSStore(ctx context.Context, bucket, signerEmail, signerKey string) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("storage bucket is empty")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &GCSStore{
		client:      client,
		bucket:      bucket,
		signerEmail: strings.TrimSpace(signerEmail),
		signerKey:   []byte(signerKey),
	}, nil
}

func (s *GCSStore) Write(ctx context.Context, objectPath, contentType string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", objectPath, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, objectPath string) error {
	err := s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", objectPath, err)
	}
	log.Debug().Str("object", objectPath).Msg("blob deleted")
	return nil
}

func (s *GCSStore) SignedDownloadURL(objectPath string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 || expiresIn > time.Hour {
		expiresIn = time.Hour
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().UTC().Add(expiresIn),
	}
	if s.signerEmail != "" {
		opts.GoogleAccessID = s.signerEmail
		opts.PrivateKey = s.signerKey
	}

	u, err := s.client.Bucket(s.bucket).SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", objectPath, err)
	}
	return u, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
