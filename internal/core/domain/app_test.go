package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// App Creation Tests
// =============================================================================

func TestNewApp_ValidInput(t *testing.T) {
	app, err := NewApp("Calorie Counter", "acme-food", "registry.example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, app.ID)
	assert.Equal(t, "Calorie Counter", app.Name)
	assert.Equal(t, "calorie-counter", app.Slug)
	assert.Equal(t, "acme-food", app.ProjectID)
	assert.Equal(t, "registry.example.com", app.Registry)
	assert.NotZero(t, app.CreatedAt)
	assert.False(t, app.HasArtifacts())
}

func TestNewApp_EmptyName(t *testing.T) {
	_, err := NewApp("", "acme", "registry.example.com")
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestNewApp_NameTooShort(t *testing.T) {
	_, err := NewApp("ab", "acme", "registry.example.com")
	assert.ErrorIs(t, err, ErrNameTooShort)
}

func TestNewApp_NameInvalidChars(t *testing.T) {
	_, err := NewApp("app/with/slashes", "acme", "registry.example.com")
	assert.ErrorIs(t, err, ErrNameInvalidChars)
}

func TestNewApp_InvalidProjectID(t *testing.T) {
	_, err := NewApp("Calorie Counter", "Acme Food", "registry.example.com")
	assert.ErrorIs(t, err, ErrProjectIDInvalidFormat)
}

func TestNewApp_EmptyRegistry(t *testing.T) {
	_, err := NewApp("Calorie Counter", "acme", "")
	assert.ErrorIs(t, err, ErrRegistryRequired)
}

// =============================================================================
// Image Reference Tests
// =============================================================================

func TestApp_ImageRef(t *testing.T) {
	app, err := NewApp("Calorie Counter", "acme-food", "registry.example.com")
	require.NoError(t, err)

	ref := app.ImageRef("abc1234")
	assert.Equal(t, "registry.example.com/acme-food/calorie-counter:abc1234", ref)
}

// =============================================================================
// Commit SHA Tests
// =============================================================================

func TestValidateCommitSHA(t *testing.T) {
	assert.NoError(t, ValidateCommitSHA("abc1234"))
	assert.NoError(t, ValidateCommitSHA("0123456789abcdef0123456789abcdef01234567"))

	assert.ErrorIs(t, ValidateCommitSHA(""), ErrCommitSHARequired)
	assert.ErrorIs(t, ValidateCommitSHA("abc"), ErrCommitSHAInvalidFormat)
	assert.ErrorIs(t, ValidateCommitSHA("not-a-sha!"), ErrCommitSHAInvalidFormat)
	assert.ErrorIs(t, ValidateCommitSHA("ABC1234"), ErrCommitSHAInvalidFormat)
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "0123456", ShortSHA("0123456789abcdef0123456789abcdef01234567"))
	assert.Equal(t, "abc1234", ShortSHA("abc1234"))
	assert.Equal(t, "abc", ShortSHA("abc"))
}
