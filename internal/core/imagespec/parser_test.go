package imagespec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const streamlitSpec = `
base: python:3.11-slim
workdir: /app
copy:
  - src: requirements.txt
    dest: .
  - src: .
    dest: .
run:
  - pip install --no-cache-dir -r requirements.txt
env:
  PYTHONUNBUFFERED: "1"
port: 8501
command: ["streamlit", "run", "app.py", "--server.port=8501", "--server.address=0.0.0.0"]
`

// =============================================================================
// Parsing Tests
// =============================================================================

func TestParseImageSpec_Valid(t *testing.T) {
	spec, err := ParseImageSpec(streamlitSpec)
	require.NoError(t, err)

	assert.Equal(t, "python:3.11-slim", spec.Base)
	assert.Equal(t, "/app", spec.Workdir)
	require.Len(t, spec.Copy, 2)
	assert.Equal(t, "requirements.txt", spec.Copy[0].Src)
	assert.Equal(t, 8501, spec.Port)
	assert.Equal(t, []string{"streamlit", "run", "app.py", "--server.port=8501", "--server.address=0.0.0.0"}, spec.Command)
}

func TestParseImageSpec_Empty(t *testing.T) {
	_, err := ParseImageSpec("")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseImageSpec_InvalidYAML(t *testing.T) {
	_, err := ParseImageSpec("base: [unclosed")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseImageSpec_UnknownField(t *testing.T) {
	_, err := ParseImageSpec("base: python:3.11\ncommand: [\"app\"]\nentrypoint: [\"sh\"]\n")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseImageSpec_MissingBase(t *testing.T) {
	_, err := ParseImageSpec("command: [\"app\"]\n")
	assert.ErrorIs(t, err, ErrBaseRequired)
}

func TestParseImageSpec_MissingCommand(t *testing.T) {
	_, err := ParseImageSpec("base: python:3.11\n")
	assert.ErrorIs(t, err, ErrCommandRequired)
}

func TestParseImageSpec_PortOutOfRange(t *testing.T) {
	_, err := ParseImageSpec("base: python:3.11\ncommand: [\"app\"]\nport: 99999\n")
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestParseImageSpec_CopyMissingDest(t *testing.T) {
	_, err := ParseImageSpec(`
base: python:3.11
command: ["app"]
copy:
  - src: requirements.txt
    dest: ""
`)
	assert.ErrorIs(t, err, ErrInvalidCopyEntry)
}

func TestParseImageSpec_CopySourceEscapesContext(t *testing.T) {
	_, err := ParseImageSpec(`
base: python:3.11
command: ["app"]
copy:
  - src: ../outside.txt
    dest: .
`)
	assert.ErrorIs(t, err, ErrUnsafePath)

	_, err = ParseImageSpec(`
base: python:3.11
command: ["app"]
copy:
  - src: /etc/passwd
    dest: .
`)
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestParseImageSpec_InvalidEnvKey(t *testing.T) {
	_, err := ParseImageSpec(`
base: python:3.11
command: ["app"]
env:
  "BAD KEY": value
`)
	assert.ErrorIs(t, err, ErrInvalidEnvKey)
}

// =============================================================================
// Error Context Tests
// =============================================================================

func TestParseImageSpec_ErrorIncludesField(t *testing.T) {
	_, err := ParseImageSpec(`
base: python:3.11
command: ["app"]
copy:
  - src: ../outside.txt
    dest: .
`)
	require.Error(t, err)

	var specErr *SpecError
	require.ErrorAs(t, err, &specErr)
	assert.Equal(t, "copy[0].src", specErr.Field)
}
