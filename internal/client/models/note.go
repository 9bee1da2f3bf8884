// Package models defines client-side data models used by the journalsync
// engine: the in-memory note, its encrypted envelope forms, and the sync
// bookkeeping records.
package models

import "time"

// Habit is one named value tracked alongside a day's entry. Order matters
// to the UI, so habits are a slice, not a map.
type Habit struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Note is the decrypted domain object owned by the content lifecycle while
// a date is being edited. It is ephemeral: reconstructed from storage on
// every load.
type Note struct {
	// Date is the calendar-day key in DD-MM-YYYY form.
	Date string

	// Content is sanitized rich text.
	Content string

	// Habits is the optional ordered habit list for the day.
	Habits []Habit

	// UpdatedAt is the last client-side modification time in UTC.
	UpdatedAt time.Time
}

// Body is the plaintext that actually goes through the envelope crypto:
// everything in a Note except the date key, which stays outside the
// ciphertext so storage can index by it.
type Body struct {
	Content string  `json:"content"`
	Habits  []Habit `json:"habits,omitempty"`
}

// NoteRecord is the at-rest/at-wire envelope for a note. Ciphertext is never
// written or transmitted without KeyID, and Nonce is drawn fresh inside every
// encryption.
type NoteRecord struct {
	// Version tags the envelope format (common.RecordVersion).
	Version int

	// Date is the calendar-day key.
	Date string

	// KeyID names the keyring key that encrypted Ciphertext.
	KeyID string

	// Ciphertext is the AEAD-sealed Body.
	Ciphertext []byte

	// Nonce is the AEAD nonce, unique per encryption.
	Nonce []byte

	// UpdatedAt is the client-side modification time in UTC.
	UpdatedAt time.Time
}
