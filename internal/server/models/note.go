// Package models defines server-side rows for the journalsync remote store.
package models

import "time"

// Note is the server-held encrypted journal entry. The server never sees
// plaintext: ciphertext and nonce pass through opaque.
//
// Revision increases by one on every accepted push for the same (user,
// date), including tombstoning. Seq is the global change-stream position;
// the pull cursor is its decimal form.
type Note struct {
	ID              string
	UserID          string
	Date            string
	KeyID           string
	Ciphertext      []byte
	Nonce           []byte
	Version         int
	Revision        int64
	Deleted         bool
	UpdatedAt       time.Time
	ServerUpdatedAt time.Time
	Seq             int64
}
