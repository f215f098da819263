package httr2

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedSecret is an encrypted credential at rest. The plaintext only ever
// exists in memory, recovered through the SecretStore that sealed it.
type SealedSecret struct {
	Nonce      []byte
	Ciphertext []byte
}

// SecretStore seals credentials for storage and opens them at use.
type SecretStore interface {
	Seal(plaintext []byte) (*SealedSecret, error)
	Open(secret *SealedSecret) ([]byte, error)
}

// AEADSecretStore seals secrets with XChaCha20-Poly1305 under a fixed key.
type AEADSecretStore struct {
	key []byte
}

// NewAEADSecretStore creates a secret store from a 32-byte key.
func NewAEADSecretStore(key []byte) (*AEADSecretStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("httr2: secret store key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	dup := make([]byte, len(key))
	copy(dup, key)
	return &AEADSecretStore{key: dup}, nil
}

// Seal encrypts plaintext under a random nonce.
func (s *AEADSecretStore) Seal(plaintext []byte) (*SealedSecret, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return &SealedSecret{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Open decrypts a sealed secret.
func (s *AEADSecretStore) Open(secret *SealedSecret) ([]byte, error) {
	if secret == nil {
		return nil, errors.New("httr2: nil sealed secret")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, secret.Nonce, secret.Ciphertext, nil)
}
