// Package secretstore encrypts a fetched remote secret (e.g. a cloud
// secret-store bearer token or signing key) at rest in process memory, so a
// heap dump doesn't trivially expose it in cleartext. This mirrors the
// teacher's mnemonic-encryption shape (Argon2id key derivation feeding
// AES-256-GCM) but re-keys via HKDF-expand over a process-random master
// secret on every fetch, rather than deriving from a user password — there
// is no password here, only a secret the process itself just retrieved.
package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Box holds a secret encrypted at rest, plus the salt/nonce needed to
// decrypt it. The master key it was encrypted under is never stored
// alongside the box.
type Box struct {
	salt       []byte
	nonce      []byte
	ciphertext []byte
}

// Sealer encrypts/decrypts Boxes under a single process-lifetime master
// secret, generated once at startup and never persisted.
type Sealer struct {
	master []byte
}

// NewSealer generates a fresh random master secret. Call once at process
// startup; the returned Sealer's master key never leaves the process.
func NewSealer() (*Sealer, error) {
	master := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, master); err != nil {
		return nil, err
	}
	return &Sealer{master: master}, nil
}

// Seal encrypts plaintext into a Box. Each call derives a fresh
// Argon2id-stretched, HKDF-expanded key from the sealer's master secret and
// a random salt, so two seals of identical plaintext never collide.
func (s *Sealer) Seal(plaintext []byte) (*Box, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	key, err := s.derive(salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return &Box{salt: salt, nonce: nonce, ciphertext: ciphertext}, nil
}

// Open decrypts a Box previously produced by Seal under the same Sealer.
func (s *Sealer) Open(box *Box) ([]byte, error) {
	key, err := s.derive(box.salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, box.nonce, box.ciphertext, nil)
	if err != nil {
		return nil, errors.New("secretstore: decryption failed, box may be corrupt")
	}
	return plaintext, nil
}

// derive stretches the master secret with Argon2id, then expands the
// result with HKDF (SHA-256) keyed on salt into a 32-byte AES key.
func (s *Sealer) derive(salt []byte) ([]byte, error) {
	stretched := argon2.IDKey(s.master, salt, argonTime, argonMemory, argonThreads, keySize)

	h := hkdf.New(sha256.New, stretched, salt, []byte("korasign-secretstore"))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ClearBytes zeroes b in place, best-effort, after a secret is no longer
// needed — adapted from the teacher's crypto.ClearBytes.
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
