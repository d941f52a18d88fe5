package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAESGCMRequiresSecret(t *testing.T) {
	_, err := NewAESGCM(nil, nil, nil)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewAESGCM([]byte("master-secret"), []byte("salt"), []byte("item-export"))
	require.NoError(t, err)

	plaintext := []byte(`{"id":1,"name":"Bolt"}`)
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	c, err := NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	first, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	second, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second), "two encryptions of the same payload must differ")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0x01
	_, err = c.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	c, err := NewAESGCM([]byte("master-secret"), nil, nil)
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCiphertextShort)
}

func TestDifferentSecretsCannotDecrypt(t *testing.T) {
	a, err := NewAESGCM([]byte("secret-a"), nil, nil)
	require.NoError(t, err)
	b, err := NewAESGCM([]byte("secret-b"), nil, nil)
	require.NoError(t, err)

	ciphertext, err := a.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err)
}
