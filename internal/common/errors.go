// Package common contains shared constants and sentinel errors used across
// client and server layers of journalsync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrDecryptFailed = errors.New("decrypt failed")
	ErrEncryptFailed = errors.New("encrypt failed")
	ErrKeyMissing    = errors.New("encryption key not in keyring")
	ErrInvalidDate   = errors.New("invalid date key")
	ErrRecordTooOld  = errors.New("unsupported record version")

	// Sync-level errors (the SyncError taxonomy).
	ErrOffline        = errors.New("offline")
	ErrConflict       = errors.New("revision conflict")
	ErrRemoteRejected = errors.New("remote rejected changes")
	ErrUnauthorized   = errors.New("unauthorized")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// UserMessage formats a sync failure into one of the small fixed set of
// user-facing strings. Anything unrecognized collapses to "Sync failed".
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOffline):
		return "Offline"
	case errors.Is(err, ErrConflict):
		return "Conflict detected"
	case errors.Is(err, ErrRemoteRejected):
		return "Remote rejected changes"
	default:
		return "Sync failed"
	}
}
