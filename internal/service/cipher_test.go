package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESCipher_RoundTrip(t *testing.T) {
	c, err := NewAESCipher("any secret works here")
	require.NoError(t, err)

	for _, plaintext := range []string{"", "token-123", "longer credential with spaces and символы"} {
		encrypted, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, encrypted)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestAESCipher_NonDeterministic(t *testing.T) {
	c, err := NewAESCipher("secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must make ciphertexts differ")
}

func TestAESCipher_TamperDetected(t *testing.T) {
	c, err := NewAESCipher("secret")
	require.NoError(t, err)

	encrypted, err := c.Encrypt("credential")
	require.NoError(t, err)

	_, err = c.Decrypt(encrypted[:len(encrypted)-4] + "AAAA")
	assert.Error(t, err)

	_, err = c.Decrypt("not base64 at all !!!")
	assert.Error(t, err)

	_, err = c.Decrypt("")
	assert.Error(t, err)
}

func TestAESCipher_WrongKey(t *testing.T) {
	a, err := NewAESCipher("secret-a")
	require.NoError(t, err)
	b, err := NewAESCipher("secret-b")
	require.NoError(t, err)

	encrypted, err := a.Encrypt("credential")
	require.NoError(t, err)

	_, err = b.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestNewAESCipher_EmptySecret(t *testing.T) {
	_, err := NewAESCipher("")
	assert.Error(t, err)
}
