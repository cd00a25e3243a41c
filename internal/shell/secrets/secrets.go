// Package secrets manages named secret values for pipelines and stacks.
// Values are write-only through the API surface: they go in, reach deploy
// targets and containers, and only ever come back out redacted.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

var (
	ErrUnknownBackend = errors.New("unknown secret backend")
	ErrValueRequired  = errors.New("secret value is required")
)

// Backend stores and retrieves secret values. Put returns the ciphertext to
// persist locally; backends that hold the value externally return "".
type Backend interface {
	Name() string
	Put(ctx context.Context, name, value string) (ciphertext string, err error)
	Get(ctx context.Context, name, ciphertext string) (string, error)
	Delete(ctx context.Context, name string) error
}

// =============================================================================
// Manager
// =============================================================================

// Manager coordinates secret metadata in the store with values in backends.
type Manager struct {
	store    store.Store
	backends map[string]Backend
	logger   *slog.Logger
}

// NewManager creates a manager over the given backends.
func NewManager(st store.Store, logger *slog.Logger, backends ...Backend) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:    st,
		backends: make(map[string]Backend, len(backends)),
		logger:   logger,
	}
	for _, b := range backends {
		m.backends[b.Name()] = b
	}
	return m
}

// Set creates a secret or rotates the value of an existing one. The value
// never appears in logs or errors.
func (m *Manager) Set(ctx context.Context, name, backendName, value string) (*domain.Secret, error) {
	if value == "" {
		return nil, ErrValueRequired
	}

	existing, err := m.store.GetSecret(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		backend, ok := m.backends[existing.Backend]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, existing.Backend)
		}

		ciphertext, err := backend.Put(ctx, name, value)
		if err != nil {
			return nil, fmt.Errorf("failed to store secret value: %w", err)
		}

		existing.Rotate()
		if err := m.store.UpdateSecretValue(ctx, existing, ciphertext); err != nil {
			return nil, err
		}

		m.logger.Info("rotated secret", "name", name, "backend", existing.Backend, "version", existing.Version)
		return existing, nil
	}

	backend, ok := m.backends[backendName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backendName)
	}

	secret, err := domain.NewSecret(name, backend.Name())
	if err != nil {
		return nil, err
	}

	ciphertext, err := backend.Put(ctx, name, value)
	if err != nil {
		return nil, fmt.Errorf("failed to store secret value: %w", err)
	}

	if err := m.store.CreateSecret(ctx, secret, ciphertext); err != nil {
		return nil, err
	}

	m.logger.Info("created secret", "name", name, "backend", secret.Backend)
	return secret, nil
}

// Resolve returns the plaintext value of a secret. Only the pipeline runner
// and the orchestrator call this; API handlers never do.
func (m *Manager) Resolve(ctx context.Context, name string) (string, error) {
	secret, err := m.store.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	backend, ok := m.backends[secret.Backend]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, secret.Backend)
	}

	ciphertext, err := m.store.GetSecretCiphertext(ctx, name)
	if err != nil {
		return "", err
	}

	return backend.Get(ctx, name, ciphertext)
}

// Get returns secret metadata.
func (m *Manager) Get(ctx context.Context, name string) (*domain.Secret, error) {
	return m.store.GetSecret(ctx, name)
}

// List returns metadata for all secrets.
func (m *Manager) List(ctx context.Context, opts store.ListOptions) ([]domain.Secret, error) {
	return m.store.ListSecrets(ctx, opts)
}

// Delete removes a secret from its backend and the store.
func (m *Manager) Delete(ctx context.Context, name string) error {
	secret, err := m.store.GetSecret(ctx, name)
	if err != nil {
		return err
	}

	backend, ok := m.backends[secret.Backend]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, secret.Backend)
	}

	if err := backend.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete secret value: %w", err)
	}

	if err := m.store.DeleteSecret(ctx, name); err != nil {
		return err
	}

	m.logger.Info("deleted secret", "name", name, "backend", secret.Backend)
	return nil
}
