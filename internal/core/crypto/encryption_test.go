package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Key Derivation Tests
// =============================================================================

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("master-passphrase")
	assert.Len(t, key, 32)

	// Deterministic
	assert.Equal(t, key, DeriveKey("master-passphrase"))
	assert.NotEqual(t, key, DeriveKey("other-passphrase"))
}

// =============================================================================
// Round Trip Tests
// =============================================================================

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := DeriveKey("master-passphrase")
	plaintext := []byte("hunter2")

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_NonceVaries(t *testing.T) {
	key := DeriveKey("master-passphrase")

	first, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	second, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecrypt_WrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("hunter2"), DeriveKey("right"))
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, DeriveKey("wrong"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_Tampered(t *testing.T) {
	key := DeriveKey("master-passphrase")
	ciphertext, err := Encrypt([]byte("hunter2"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = Decrypt(ciphertext, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_TooShort(t *testing.T) {
	_, err := Decrypt([]byte("tiny"), DeriveKey("master"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestEncrypt_KeyTooShort(t *testing.T) {
	_, err := Encrypt([]byte("data"), []byte("short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)

	_, err = Decrypt([]byte("data"), []byte("short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

// =============================================================================
// Base64 Variant Tests
// =============================================================================

func TestBase64RoundTrip(t *testing.T) {
	key := DeriveKey("master-passphrase")

	encoded, err := EncryptToBase64([]byte("hunter2"), key)
	require.NoError(t, err)

	decrypted, err := DecryptFromBase64(encoded, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), decrypted)
}

func TestDecryptFromBase64_InvalidEncoding(t *testing.T) {
	_, err := DecryptFromBase64("not base64 !!!", DeriveKey("master"))
	assert.Error(t, err)
}
