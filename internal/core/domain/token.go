package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// API Token Errors
// =============================================================================

var (
	ErrTokenNameRequired = errors.New("token name is required")
	ErrTokenRevoked      = errors.New("token is revoked")
)

// =============================================================================
// API Token
// =============================================================================

// APIToken is the stored record of an API token. Only the bcrypt hash is
// persisted; the plaintext exists once, at creation time.
type APIToken struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Hash      string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// NewAPIToken creates token metadata with the given hash.
func NewAPIToken(name, hash string) (*APIToken, error) {
	if name == "" {
		return nil, ErrTokenNameRequired
	}
	return &APIToken{
		ID:        uuid.New().String(),
		Name:      name,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Revoke marks the token as revoked.
func (t *APIToken) Revoke() {
	now := time.Now().UTC()
	t.RevokedAt = &now
}

// Active reports whether the token can still authenticate.
func (t *APIToken) Active() bool {
	return t.RevokedAt == nil
}

// GenerateTokenPlaintext produces a new random token value with a stable
// prefix so tokens are recognizable in configuration.
func GenerateTokenPlaintext() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return "shp_" + hex.EncodeToString(buf)
}
