package store

import (
	"context"

	"github.com/samaanhq/shipyard/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for Shipyard entities.
type Store interface {
	// App operations
	CreateApp(ctx context.Context, app *domain.App) error
	GetApp(ctx context.Context, id string) (*domain.App, error)
	GetAppBySlug(ctx context.Context, slug string) (*domain.App, error)
	UpdateApp(ctx context.Context, app *domain.App) error
	DeleteApp(ctx context.Context, id string) error
	ListApps(ctx context.Context, opts ListOptions) ([]domain.App, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	UpdateRun(ctx context.Context, run *domain.Run) error
	ListRunsByApp(ctx context.Context, appID string, opts ListOptions) ([]domain.Run, error)
	NextQueuedRun(ctx context.Context) (*domain.Run, error)

	// Release operations
	CreateRelease(ctx context.Context, release *domain.Release) error
	ListReleasesByApp(ctx context.Context, appID string, opts ListOptions) ([]domain.Release, error)
	LatestRelease(ctx context.Context, appID string) (*domain.Release, error)

	// Secret operations. Values are stored encrypted and only ever leave
	// the store as ciphertext; decryption belongs to the secrets layer.
	CreateSecret(ctx context.Context, secret *domain.Secret, ciphertext string) error
	GetSecret(ctx context.Context, name string) (*domain.Secret, error)
	GetSecretCiphertext(ctx context.Context, name string) (string, error)
	UpdateSecretValue(ctx context.Context, secret *domain.Secret, ciphertext string) error
	DeleteSecret(ctx context.Context, name string) error
	ListSecrets(ctx context.Context, opts ListOptions) ([]domain.Secret, error)

	// Stack state
	GetStack(ctx context.Context, appID string) (*domain.Stack, error)
	SaveStack(ctx context.Context, stack *domain.Stack) error

	// API token operations
	CreateAPIToken(ctx context.Context, token *domain.APIToken) error
	ListActiveAPITokens(ctx context.Context) ([]domain.APIToken, error)
	RevokeAPIToken(ctx context.Context, id string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
