package notes

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
)

// Row couples a stored note envelope with its local sync bookkeeping.
type Row struct {
	Record models.NoteRecord

	// RemoteID is the server-assigned note identity, "" until first push.
	RemoteID string

	// Revision is the last server revision we have seen for this note.
	Revision int64

	// Pending marks a local mutation not yet confirmed synced.
	Pending bool
}

// PendingDelete records a locally removed note whose tombstone still has to
// be pushed. Local deletes are physical; this row is what keeps the delete
// from being silently dropped.
type PendingDelete struct {
	Date     string
	RemoteID string
}

// Repository describes the local encrypted note store.
// Implementations are backed by the client SQLite database.
type Repository interface {
	// Get returns the row for a date, or nil when the date has no note.
	Get(ctx context.Context, date string) (*Row, error)

	// Upsert inserts or replaces the row for row.Record.Date.
	Upsert(ctx context.Context, row *Row) error

	// Delete physically removes the note for a date. Recording the pending
	// tombstone is the caller's job (AddPendingDelete).
	Delete(ctx context.Context, date string) error

	// MarkSynced stores the server identity/revision for a date and clears
	// its pending marker.
	MarkSynced(ctx context.Context, date, remoteID string, revision int64) error

	// GetAllDates lists every locally stored date, ascending.
	GetAllDates(ctx context.Context) ([]string, error)

	// GetDatesForYear lists locally stored dates within a calendar year.
	GetDatesForYear(ctx context.Context, year int) ([]string, error)

	// GetPending returns rows awaiting push.
	GetPending(ctx context.Context) ([]*Row, error)

	// HasPending reports whether a date has an unsynced mutation, counting
	// pending deletes.
	HasPending(ctx context.Context, date string) (bool, error)

	// CountPending counts unsynced note mutations, counting pending deletes.
	CountPending(ctx context.Context) (int, error)

	// AddPendingDelete records a tombstone to push for a removed note.
	AddPendingDelete(ctx context.Context, date, remoteID string) error

	// GetPendingDeletes lists tombstones awaiting push.
	GetPendingDeletes(ctx context.Context) ([]PendingDelete, error)

	// ClearPendingDelete drops a tombstone once the remote confirmed it.
	ClearPendingDelete(ctx context.Context, date string) error
}
