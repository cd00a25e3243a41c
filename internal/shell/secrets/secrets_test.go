package secrets

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

func setupTestManager(t *testing.T) *Manager {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(st, logger, NewLocalBackend("test-master-key"))
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestSetAndResolve(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	secret, err := m.Set(ctx, "db-password", "local", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "db-password", secret.Name)
	assert.Equal(t, "local", secret.Backend)
	assert.Equal(t, 1, secret.Version)

	value, err := m.Resolve(ctx, "db-password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)
}

func TestSetRotatesExisting(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "db-password", "local", "first")
	require.NoError(t, err)

	rotated, err := m.Set(ctx, "db-password", "local", "second")
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.Version)

	value, err := m.Resolve(ctx, "db-password")
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestSetEmptyValue(t *testing.T) {
	m := setupTestManager(t)

	_, err := m.Set(context.Background(), "db-password", "local", "")
	assert.ErrorIs(t, err, ErrValueRequired)
}

func TestSetUnknownBackend(t *testing.T) {
	m := setupTestManager(t)

	_, err := m.Set(context.Background(), "db-password", "vault", "s3cret")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestGetNeverReturnsValue(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "db-password", "local", "s3cret")
	require.NoError(t, err)

	secret, err := m.Get(ctx, "db-password")
	require.NoError(t, err)

	// Metadata only; the domain type has no value field at all
	assert.Equal(t, "db-password", secret.Name)
	assert.Equal(t, "***", domain.RedactedValue)
}

func TestResolveNotFound(t *testing.T) {
	m := setupTestManager(t)

	_, err := m.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "db-password", "local", "s3cret")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "db-password"))

	_, err = m.Resolve(ctx, "db-password")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestList(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "db-password", "local", "a")
	require.NoError(t, err)
	_, err = m.Set(ctx, "api-key", "local", "b")
	require.NoError(t, err)

	secrets, err := m.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, secrets, 2)
}

// =============================================================================
// Local Backend Tests
// =============================================================================

func TestLocalBackendRoundTrip(t *testing.T) {
	b := NewLocalBackend("master")
	ctx := context.Background()

	ciphertext, err := b.Put(ctx, "name", "plaintext-value")
	require.NoError(t, err)
	assert.NotEqual(t, "plaintext-value", ciphertext)
	assert.NotContains(t, ciphertext, "plaintext-value")

	value, err := b.Get(ctx, "name", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "plaintext-value", value)
}

func TestLocalBackendWrongKey(t *testing.T) {
	ctx := context.Background()

	ciphertext, err := NewLocalBackend("master-a").Put(ctx, "name", "value")
	require.NoError(t, err)

	_, err = NewLocalBackend("master-b").Get(ctx, "name", ciphertext)
	assert.Error(t, err)
}

// =============================================================================
// AWS Backend Tests
// =============================================================================

// fakeSM is an in-memory Secrets Manager.
type fakeSM struct {
	values map[string]string
}

func newFakeSM() *fakeSM {
	return &fakeSM{values: make(map[string]string)}
}

func (f *fakeSM) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	name := aws.ToString(params.Name)
	if _, exists := f.values[name]; exists {
		return nil, &fakeSMError{code: "ResourceExistsException"}
	}
	f.values[name] = aws.ToString(params.SecretString)
	return &secretsmanager.CreateSecretOutput{}, nil
}

func (f *fakeSM) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.values[aws.ToString(params.SecretId)] = aws.ToString(params.SecretString)
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (f *fakeSM) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	value, ok := f.values[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &fakeSMError{code: "ResourceNotFoundException"}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func (f *fakeSM) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	delete(f.values, aws.ToString(params.SecretId))
	return &secretsmanager.DeleteSecretOutput{}, nil
}

type fakeSMError struct {
	code string
}

func (e *fakeSMError) Error() string { return e.code }

func TestAWSSMBackendPutGetDelete(t *testing.T) {
	fake := newFakeSM()
	b := &AWSSMBackend{client: fake, prefix: "shipyard/"}
	ctx := context.Background()

	ciphertext, err := b.Put(ctx, "db-password", "s3cret")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)
	assert.Equal(t, "s3cret", fake.values["shipyard/db-password"])

	value, err := b.Get(ctx, "db-password", "")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	// Second put rotates through PutSecretValue
	_, err = b.Put(ctx, "db-password", "rotated")
	require.NoError(t, err)
	assert.Equal(t, "rotated", fake.values["shipyard/db-password"])

	require.NoError(t, b.Delete(ctx, "db-password"))
	_, err = b.Get(ctx, "db-password", "")
	assert.Error(t, err)
}
