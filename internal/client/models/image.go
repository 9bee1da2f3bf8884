package models

import "time"

// ImageRecord is the encrypted envelope for a binary blob attached to a
// note. It shares the note envelope shape and additionally records a content
// hash so integrity can be verified without decrypting.
type ImageRecord struct {
	// ID is a client-generated identifier (uuid).
	ID string

	// Date ties the image to a journal day.
	Date string

	// KeyID names the keyring key that encrypted Ciphertext.
	KeyID string

	Ciphertext []byte
	Nonce      []byte

	// SHA256 is the hex-encoded digest of the plaintext.
	SHA256 string

	// Size is the plaintext length in bytes.
	Size int64

	CreatedAt time.Time
}
