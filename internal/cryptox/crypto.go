package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/client/models"
	"github.com/dmitrijs2005/journalsync/internal/common"
	"github.com/dmitrijs2005/journalsync/internal/sanitize"
	"github.com/google/uuid"
)

// Service seals and opens note/image envelopes under a Keyring.
//
// A missing key is not an error: Encrypt* returns (nil, nil) when the
// keyring has no active key, and Decrypt* returns (nil, nil) when the
// envelope's key was rotated out. Callers must treat nil as "content
// unavailable", not corruption.
type Service struct {
	keyring *Keyring
	deriver *Deriver
}

func NewService(keyring *Keyring) *Service {
	return &Service{keyring: keyring, deriver: NewDeriver()}
}

// Unlock derives the master key for (password, salt) with argon2id and
// installs it in the keyring under keyID as the sealing key. The returned
// verifier is what the remote store holds for login checks; the key itself
// never leaves the keyring. Repeated unlocks with the same credentials hit
// the deriver cache.
func (s *Service) Unlock(password, salt []byte, keyID string) []byte {
	key := s.deriver.Derive(password, salt)
	s.keyring.AddKey(keyID, key)
	s.keyring.SetActive(keyID)
	return MakeVerifier(key)
}

// EncryptNote sanitizes content, serializes the note body to JSON, and
// seals it with AES-GCM under the keyring's active key. The nonce is drawn
// fresh inside this call; there is deliberately no way for a caller to
// supply one.
func (s *Service) EncryptNote(date, content string, habits []models.Habit) (*models.NoteRecord, error) {
	keyID := s.keyring.ActiveID()
	if keyID == "" {
		return nil, nil
	}
	key, _ := s.keyring.Key(keyID)

	body := models.Body{Content: sanitize.Clean(content), Habits: habits}
	plaintext, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryptFailed, err)
	}

	ciphertext, nonce, err := seal(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryptFailed, err)
	}

	return &models.NoteRecord{
		Version:    common.RecordVersion,
		Date:       date,
		KeyID:      keyID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

// DecryptNote opens a note envelope. The record's own KeyID selects the
// key, so notes sealed under a rotated-out-but-retained key stay readable.
// Content is sanitized again after decryption.
func (s *Service) DecryptNote(rec *models.NoteRecord) (*models.Note, error) {
	key, ok := s.keyring.Key(rec.KeyID)
	if !ok {
		return nil, nil
	}

	plaintext, err := open(rec.Ciphertext, rec.Nonce, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailed, err)
	}

	var body models.Body
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailed, err)
	}

	return &models.Note{
		Date:      rec.Date,
		Content:   sanitize.Clean(body.Content),
		Habits:    body.Habits,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// EncryptImage seals a binary blob under the active key and records the
// plaintext's hex SHA-256 digest and size alongside, so integrity can be
// checked without decrypting.
func (s *Service) EncryptImage(date string, data []byte) (*models.ImageRecord, error) {
	keyID := s.keyring.ActiveID()
	if keyID == "" {
		return nil, nil
	}
	key, _ := s.keyring.Key(keyID)

	ciphertext, nonce, err := seal(data, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryptFailed, err)
	}

	sum := sha256.Sum256(data)

	return &models.ImageRecord{
		ID:         uuid.NewString(),
		Date:       date,
		KeyID:      keyID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		SHA256:     hex.EncodeToString(sum[:]),
		Size:       int64(len(data)),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// DecryptImage opens an image envelope and verifies the recorded digest.
func (s *Service) DecryptImage(rec *models.ImageRecord) ([]byte, error) {
	key, ok := s.keyring.Key(rec.KeyID)
	if !ok {
		return nil, nil
	}

	data, err := open(rec.Ciphertext, rec.Nonce, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailed, err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != rec.SHA256 {
		return nil, fmt.Errorf("%w: content hash mismatch", common.ErrDecryptFailed)
	}
	return data, nil
}

// seal encrypts plaintext with AES-GCM under key, generating a fresh
// random 12-byte nonce.
func seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// open decrypts ciphertext with AES-GCM.
func open(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
