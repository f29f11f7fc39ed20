package interfaces

import (
	"context"
	"io"
)

// AttachmentStorage persists attachment bytes under a storage path.
type AttachmentStorage interface {
	EnsureRoot(ctx context.Context) error
	Write(ctx context.Context, path string, content io.Reader, contentType string) (int64, error)
	Delete(ctx context.Context, path string) error
	Backend() string
}
