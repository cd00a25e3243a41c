package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const fullPipeline = `
substitutions:
  _REGION: fra1

steps:
  - name: build-image
    action: build
    context: .

  - name: push-image
    action: push

  - name: deploy
    action: deploy
    target: digitalocean
    region: $_REGION
    env:
      DB_HOST: db.internal
      APP_VERSION: $SHORT_SHA
    secrets:
      DB_PASSWORD: db-password
`

// =============================================================================
// Parsing Tests
// =============================================================================

func TestParsePipeline_Valid(t *testing.T) {
	p, err := ParsePipeline(fullPipeline)
	require.NoError(t, err)

	require.Len(t, p.Steps, 3)
	assert.Equal(t, []string{"build-image", "push-image", "deploy"}, p.StepNames())
	assert.Equal(t, []string{"build", "push", "deploy"}, p.StepActions())
	assert.Equal(t, "fra1", p.Substitutions["_REGION"])

	deploy := p.DeployStep()
	require.NotNil(t, deploy)
	assert.Equal(t, "digitalocean", deploy.Target)
	assert.Equal(t, "db-password", deploy.Secrets["DB_PASSWORD"])
}

func TestParsePipeline_Empty(t *testing.T) {
	_, err := ParsePipeline("")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParsePipeline_InvalidYAML(t *testing.T) {
	_, err := ParsePipeline("steps: [unclosed")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParsePipeline_NoSteps(t *testing.T) {
	_, err := ParsePipeline("steps: []\n")
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestParsePipeline_DuplicateStepName(t *testing.T) {
	_, err := ParsePipeline(`
steps:
  - name: same
    action: build
  - name: same
    action: push
`)
	assert.ErrorIs(t, err, ErrDuplicateStepName)
}

func TestParsePipeline_UnknownAction(t *testing.T) {
	_, err := ParsePipeline(`
steps:
  - name: test
    action: lint
`)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestParsePipeline_DuplicateAction(t *testing.T) {
	_, err := ParsePipeline(`
steps:
  - name: build-one
    action: build
  - name: build-two
    action: build
`)
	assert.ErrorIs(t, err, ErrDuplicateAction)
}

func TestParsePipeline_DeployWithoutTarget(t *testing.T) {
	_, err := ParsePipeline(`
steps:
  - name: deploy
    action: deploy
`)
	assert.ErrorIs(t, err, ErrDeployTargetRequired)
}

func TestParsePipeline_UnknownTarget(t *testing.T) {
	_, err := ParsePipeline(`
steps:
  - name: deploy
    action: deploy
    target: mainframe
`)
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestParsePipeline_UserVariableWithoutUnderscore(t *testing.T) {
	_, err := ParsePipeline(`
substitutions:
  REGION: fra1
steps:
  - name: build-image
    action: build
`)
	assert.ErrorIs(t, err, ErrInvalidUserVariable)
}

// =============================================================================
// Step Order Tests
// =============================================================================

func TestValidateStepOrder_Valid(t *testing.T) {
	p, err := ParsePipeline(fullPipeline)
	require.NoError(t, err)

	assert.NoError(t, ValidateStepOrder(p))
}

func TestValidateStepOrder_BuildOnly(t *testing.T) {
	p, err := ParsePipeline(`
steps:
  - name: build-image
    action: build
`)
	require.NoError(t, err)

	assert.NoError(t, ValidateStepOrder(p))
}

func TestValidateStepOrder_DeployBeforeBuild(t *testing.T) {
	p, err := ParsePipeline(`
steps:
  - name: deploy
    action: deploy
    target: http
  - name: build-image
    action: build
`)
	require.NoError(t, err)

	assert.ErrorIs(t, ValidateStepOrder(p), ErrStepOutOfOrder)
}

// =============================================================================
// Accessor Tests
// =============================================================================

func TestPipeline_SecretNames(t *testing.T) {
	p, err := ParsePipeline(fullPipeline)
	require.NoError(t, err)

	assert.Equal(t, []string{"db-password"}, p.SecretNames())
}

func TestPipeline_DeployStep_Absent(t *testing.T) {
	p, err := ParsePipeline(`
steps:
  - name: build-image
    action: build
`)
	require.NoError(t, err)

	assert.Nil(t, p.DeployStep())
}
