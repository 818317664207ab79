package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"

	ciphertext, err := Encrypt("db-password-secret", key)
	require.NoError(t, err)
	assert.NotEqual(t, "db-password-secret", ciphertext)

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "db-password-secret", plaintext)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"

	a, err := Encrypt("same-plaintext", key)
	require.NoError(t, err)
	b, err := Encrypt("same-plaintext", key)
	require.NoError(t, err)

	// GCM随机nonce，同明文不同密文
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKey(t *testing.T) {
	ciphertext, err := Encrypt("secret", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, "another-key-entirely-xxxxxxxxxxx")
	assert.Error(t, err)
}

func TestShortKeyIsNormalized(t *testing.T) {
	// 不足32字节的密钥补齐后仍可往返
	ciphertext, err := Encrypt("secret", "short-key")
	require.NoError(t, err)

	plaintext, err := Decrypt(ciphertext, "short-key")
	require.NoError(t, err)
	assert.Equal(t, "secret", plaintext)
}

func TestDecryptGarbage(t *testing.T) {
	_, err := Decrypt("not-valid-ciphertext", "0123456789abcdef0123456789abcdef")
	assert.Error(t, err)
}
