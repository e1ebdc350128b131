package contracts

import (
	"context"

	"whisper/internal/core/domain"
)

// MediaStore is the third-party object store holding attachments.
type MediaStore interface {
	Upload(ctx context.Context, in domain.MediaUpload) (*domain.MediaRef, error)
	Delete(ctx context.Context, publicID, resourceType string) error
}
