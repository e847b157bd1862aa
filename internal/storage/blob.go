package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore is the narrow blob interface the uploads gateway needs: write,
// compensating delete, and time-boxed signed read URLs.
type BlobStore interface {
	Write(ctx context.Context, objectPath, contentType string, r io.Reader) error
	Delete(ctx context.Context, objectPath string) error
	SignedDownloadURL(objectPath string, expiresIn time.Duration) (string, error)
}
