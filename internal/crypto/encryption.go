// Package crypto provides encryption for provider credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrEmptyKey         = errors.New("encryption key must not be empty")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// keyDerivationSalt is fixed: the derived key must be stable across
// restarts for stored ciphertexts to stay readable.
var keyDerivationSalt = []byte("nittei-integration-tokens")

const keyDerivationIterations = 600_000

// EncryptionService provides AES-256-GCM encryption for sensitive data.
// The cipher key is derived from the configured secret with PBKDF2.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService derives a 32-byte key from the secret and builds
// the AEAD.
func NewEncryptionService(secret string) (*EncryptionService, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}

	key := pbkdf2.Key([]byte(secret), keyDerivationSalt, keyDerivationIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &EncryptionService{gcm: gcm}, nil
}

// Encrypt encrypts plaintext and returns ciphertext with nonce prepended
func (s *EncryptionService) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext (expects nonce prepended)
func (s *EncryptionService) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < s.gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	nonce := ciphertext[:s.gcm.NonceSize()]
	ciphertext = ciphertext[s.gcm.NonceSize():]

	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
