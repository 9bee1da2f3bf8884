package models

import "time"

// RemoteNote is the server-held superset of NoteRecord.
type RemoteNote struct {
	NoteRecord

	// ID is the server-assigned identity, stable across revisions.
	ID string

	// Revision increases by one on every successful push for this ID.
	Revision int64

	// ServerUpdatedAt is the server clock, authoritative for ordering.
	ServerUpdatedAt time.Time

	// Deleted marks a tombstone. Deletions are recorded, not removed, so
	// they propagate to other devices.
	Deleted bool
}

// RemoteNotePayload is what a push carries to the remote store.
// ExpectedRevision is the optimistic-concurrency check: the server rejects
// the push with a conflict when it does not match the current revision
// (zero means "expect the note not to exist yet").
type RemoteNotePayload struct {
	ID               string `json:"id,omitempty"`
	Date             string `json:"date"`
	KeyID            string `json:"keyId"`
	Ciphertext       []byte `json:"ciphertext"`
	Nonce            []byte `json:"nonce"`
	Version          int    `json:"version"`
	UpdatedAt        string `json:"updatedAt"`
	ExpectedRevision int64  `json:"expectedRevision"`
}

// SyncStateRecord is the singleton row tracking incremental-pull progress.
// Cursor is an opaque server token; empty means "never synced".
type SyncStateRecord struct {
	ID     string
	Cursor string
}

// SyncStateID is the fixed key of the singleton SyncStateRecord.
const SyncStateID = "state"

// PendingOpsSummary counts local mutations not yet confirmed synced.
// It is derived from the store's dirty markers, never persisted.
type PendingOpsSummary struct {
	Notes  int
	Images int
	Total  int
}

// HasPending reports whether anything is waiting to be pushed.
func (s PendingOpsSummary) HasPending() bool { return s.Total > 0 }

// SyncStatus is the coarse outcome/state of the sync stream as a whole.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusOffline SyncStatus = "offline"
	SyncStatusError   SyncStatus = "error"
)
