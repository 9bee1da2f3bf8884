// Package cryptox implements the envelope crypto boundary: a keyring of
// AEAD keys and a service that seals/opens note and image payloads with
// AES-GCM. Historical envelopes stay readable as long as their key is
// retained in the keyring.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Keyring holds the set of envelope keys for one account, keyed by key ID,
// plus the ID of the key new envelopes are sealed under. It is an
// explicitly passed dependency, never an ambient global, so tests can build
// isolated instances.
type Keyring struct {
	mu     sync.RWMutex
	keys   map[string][]byte
	active string
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string][]byte)}
}

// AddKey registers key under id. The first key added becomes active.
func (k *Keyring) AddKey(id string, key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[id] = key
	if k.active == "" {
		k.active = id
	}
}

// SetActive switches which key seals new envelopes. Unknown IDs are ignored.
func (k *Keyring) SetActive(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[id]; ok {
		k.active = id
	}
}

// Key returns the key registered under id, if retained.
func (k *Keyring) Key(id string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[id]
	return key, ok
}

// ActiveID returns the ID of the current sealing key, or "" when the
// keyring is empty.
func (k *Keyring) ActiveID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active
}

// MakeVerifier returns a hash of the master key suitable for storing
// server-side as a login verifier.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// Deriver turns a password+salt pair into a 32-byte master key with
// argon2id, caching results so repeated unlocks of the same keyring do not
// re-pay the KDF cost.
type Deriver struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewDeriver() *Deriver {
	return &Deriver{cache: make(map[string][]byte)}
}

// Derive returns the argon2id key for (password, salt).
func (d *Deriver) Derive(password, salt []byte) []byte {
	sum := sha256.Sum256(append(append([]byte{}, password...), salt...))
	id := hex.EncodeToString(sum[:])

	d.mu.Lock()
	defer d.mu.Unlock()
	if key, ok := d.cache[id]; ok {
		return key
	}
	key := argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
	d.cache[id] = key
	return key
}

// GenerateRandBytes returns n cryptographically random bytes. It panics on
// entropy failure, which is unrecoverable anyway.
func GenerateRandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
