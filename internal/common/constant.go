// Package common contains shared constants and sentinel errors used across
// journalsync components.
package common

import "time"

// DateFormat is the calendar-day key format used for notes ("DD-MM-YYYY"
// rendered with Go's reference time).
const DateFormat = "02-01-2006"

// AuthHeaderName is the HTTP header used to carry the bearer token on
// outbound requests to the remote store.
const AuthHeaderName = "Authorization"

// RecordVersion is the current envelope format tag written into every
// NoteRecord.
const RecordVersion = 1

// ValidDate reports whether s is a well-formed DD-MM-YYYY day key.
func ValidDate(s string) bool {
	_, err := time.Parse(DateFormat, s)
	return err == nil
}
