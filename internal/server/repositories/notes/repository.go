// Package notes provides the PostgreSQL-backed repository for server-side
// note persistence and change-stream queries.
package notes

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/server/models"
)

// Repository describes server-side note storage. All operations are scoped
// to one user; revisions are the optimistic-concurrency guard.
type Repository interface {
	// GetByDate returns the row (tombstones included) for a user's date,
	// nil when the date was never written.
	GetByDate(ctx context.Context, userID, date string) (*models.Note, error)

	// Create inserts a fresh note at revision 1. A concurrent row for the
	// same (user, date) returns ErrConflict.
	Create(ctx context.Context, n *models.Note) (*models.Note, error)

	// UpdateWithRevision replaces the envelope when expected matches the
	// stored revision, bumping revision and the change sequence. A
	// tombstoned row accepts expected 0 (the client lost its local copy).
	// Mismatches return ErrConflict.
	UpdateWithRevision(ctx context.Context, n *models.Note, expected int64) (*models.Note, error)

	// GetDates lists dates with live notes, year 0 meaning all years.
	GetDates(ctx context.Context, userID string, year int) ([]string, error)

	// SelectSince returns rows with change sequence past seq, oldest first.
	SelectSince(ctx context.Context, userID string, seq int64) ([]*models.Note, error)

	// Tombstone marks a live note deleted by id (preferred) or date,
	// bumping revision and sequence. ErrNotFound when nothing matched.
	Tombstone(ctx context.Context, userID, id, date string) error
}
