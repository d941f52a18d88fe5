// Package security provides the symmetric encryption boundary used by the
// item exporter. The key provider is injected, so callers can swap in a fake
// cipher for tests.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Errors
var (
	ErrKeyUnavailable  = errors.New("encryption key unavailable")
	ErrCiphertextShort = errors.New("ciphertext shorter than nonce")
)

// Cipher is the capability boundary for the exporter: authenticated
// symmetric encryption of an opaque byte payload.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

const derivedKeySize = 32 // AES-256

// AESGCM is a Cipher backed by AES-256-GCM with an HKDF-SHA256 derived key.
// The nonce is prepended to the ciphertext.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM derives an AES-256 key from the given master secret via
// HKDF-SHA256 and returns a ready cipher. The salt may be empty; info binds
// the derived key to its purpose.
func NewAESGCM(masterSecret, salt, info []byte) (*AESGCM, error) {
	if len(masterSecret) == 0 {
		return nil, ErrKeyUnavailable
	}

	key := make([]byte, derivedKeySize)
	kdf := hkdf.New(sha256.New, masterSecret, salt, info)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCM{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce.
func (c *AESGCM) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *AESGCM) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, ErrCiphertextShort
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, sealed, nil)
}
