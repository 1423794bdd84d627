package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionRoundTrip(t *testing.T) {
	service, err := NewEncryptionService("a passphrase")
	require.NoError(t, err)

	plaintext := []byte("ya29.some-access-token")
	ciphertext, err := service.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := service.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptionRejectsEmptyKey(t *testing.T) {
	_, err := NewEncryptionService("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	service, err := NewEncryptionService("a passphrase")
	require.NoError(t, err)

	ciphertext, err := service.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = service.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	service, err := NewEncryptionService("a passphrase")
	require.NoError(t, err)

	_, err = service.Decrypt([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
