package images

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
)

// Repository describes the local store for encrypted image blobs.
type Repository interface {
	// Put inserts or replaces an image record. pending marks it as an
	// unsynced local mutation.
	Put(ctx context.Context, rec *models.ImageRecord, pending bool) error

	// Get returns an image by ID, or nil when absent.
	Get(ctx context.Context, id string) (*models.ImageRecord, error)

	// GetForDate lists images attached to a journal day.
	GetForDate(ctx context.Context, date string) ([]*models.ImageRecord, error)

	// Delete removes an image.
	Delete(ctx context.Context, id string) error

	// GetPending returns images awaiting upload.
	GetPending(ctx context.Context) ([]*models.ImageRecord, error)

	// MarkSynced clears the pending marker for an image.
	MarkSynced(ctx context.Context, id string) error

	// CountPending counts unsynced image mutations.
	CountPending(ctx context.Context) (int, error)
}
