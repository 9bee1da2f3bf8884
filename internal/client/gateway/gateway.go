// Package gateway defines the remote-store wire contract driven by the sync
// execution service, and its HTTP/JSON implementation.
package gateway

import (
	"context"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
)

// Client is the remote gateway contract. Errors are mapped into the
// SyncError taxonomy (common.ErrOffline / ErrConflict / ErrRemoteRejected /
// ErrUnauthorized) so callers never inspect transport details.
type Client interface {
	// Ping probes reachability of the remote store.
	Ping(ctx context.Context) error

	// FetchNoteByDate returns the remote note for a date, or nil when the
	// remote has none. Tombstoned dates read as absent; deletions surface
	// only through the FetchNotesSince change stream.
	FetchNoteByDate(ctx context.Context, date string) (*models.RemoteNote, error)

	// FetchNoteDates lists dates with live remote notes. year 0 means all.
	FetchNoteDates(ctx context.Context, year int) ([]string, error)

	// FetchNotesSince returns notes changed after the cursor, oldest first,
	// plus the cursor to persist for the next pull. An empty cursor fetches
	// from the beginning of the change stream.
	FetchNotesSince(ctx context.Context, cursor string) ([]*models.RemoteNote, string, error)

	// PushNote uploads one envelope. The payload carries the expected
	// revision; a mismatch comes back as common.ErrConflict.
	PushNote(ctx context.Context, payload *models.RemoteNotePayload) (*models.RemoteNote, error)

	// DeleteNote tombstones a remote note by id (preferred) or date.
	DeleteNote(ctx context.Context, id, date string) error

	// PresignImagePut returns a URL the caller can PUT an encrypted image
	// blob to, valid for a short window.
	PresignImagePut(ctx context.Context, imageID string) (string, error)

	// UploadImage PUTs an encrypted blob to a presigned URL.
	UploadImage(ctx context.Context, url string, data []byte) error
}
