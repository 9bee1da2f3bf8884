package syncstate

import "context"

// Repository persists the incremental-pull cursor and the cached remote
// date index. The cursor lives in a singleton row; the date cache is what
// the offline-stub check consults when the remote itself is unreachable.
type Repository interface {
	// GetCursor returns the persisted change-stream cursor, "" when the
	// device has never completed a pull.
	GetCursor(ctx context.Context) (string, error)

	// SetCursor stores the cursor. Writing "" resets sync progress.
	SetCursor(ctx context.Context, cursor string) error

	// ReplaceRemoteDates replaces the cached remote index for one year.
	ReplaceRemoteDates(ctx context.Context, year int, dates []string) error

	// AddRemoteDate records a single date as known to exist remotely.
	AddRemoteDate(ctx context.Context, date string) error

	// RemoveRemoteDate drops a date from the cache (after a tombstone).
	RemoveRemoteDate(ctx context.Context, date string) error

	// HasRemoteDate reports whether the cache lists the date.
	HasRemoteDate(ctx context.Context, date string) (bool, error)
}
