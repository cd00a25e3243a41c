package secrets

import (
	"context"

	"github.com/samaanhq/shipyard/internal/core/crypto"
)

// LocalBackend encrypts values with AES-256-GCM and hands the ciphertext to
// the store. The key derives from a master key supplied at startup.
type LocalBackend struct {
	key []byte
}

// NewLocalBackend derives the encryption key from the master key.
func NewLocalBackend(masterKey string) *LocalBackend {
	return &LocalBackend{key: crypto.DeriveKey(masterKey)}
}

func (b *LocalBackend) Name() string {
	return "local"
}

func (b *LocalBackend) Put(ctx context.Context, name, value string) (string, error) {
	return crypto.EncryptToBase64([]byte(value), b.key)
}

func (b *LocalBackend) Get(ctx context.Context, name, ciphertext string) (string, error) {
	plaintext, err := crypto.DecryptFromBase64(ciphertext, b.key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Delete is a no-op; the ciphertext lives in the store row, which the
// manager removes.
func (b *LocalBackend) Delete(ctx context.Context, name string) error {
	return nil
}
