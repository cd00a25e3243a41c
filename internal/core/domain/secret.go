package domain

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Secret Errors
// =============================================================================

var (
	ErrSecretNameRequired      = errors.New("secret name is required")
	ErrSecretNameInvalidFormat = errors.New("secret name can only contain lowercase alphanumeric characters, hyphens, and underscores")
	ErrSecretValueRequired     = errors.New("secret value is required")
)

var secretNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// =============================================================================
// Secret
// =============================================================================

// RedactedValue is what appears anywhere a secret value would otherwise be
// printed or logged.
const RedactedValue = "***"

// Secret is the metadata for a stored secret. The value itself never lives
// on this type; it stays inside the secret store and is resolved only at
// the moment a pipeline step needs it.
type Secret struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Backend   string    `json:"backend"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSecret creates secret metadata for a name and backend.
func NewSecret(name, backend string) (*Secret, error) {
	if err := ValidateSecretName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Secret{
		ID:        uuid.New().String(),
		Name:      name,
		Backend:   backend,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Rotate bumps the version after a value update.
func (s *Secret) Rotate() {
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// ValidateSecretName validates a secret name.
func ValidateSecretName(name string) error {
	if name == "" {
		return ErrSecretNameRequired
	}
	if !secretNameRegex.MatchString(name) {
		return ErrSecretNameInvalidFormat
	}
	return nil
}
