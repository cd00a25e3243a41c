package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp("Calorie Counter", "acme-food", "registry.example.com")
	require.NoError(t, err)
	return app
}

func createQueuedRun(t *testing.T) *Run {
	t.Helper()
	run, err := NewRun(createTestApp(t), "abc1234",
		[]string{"build-image", "push-image", "deploy"},
		[]string{"build", "push", "deploy"})
	require.NoError(t, err)
	return run
}

// =============================================================================
// Run Creation Tests
// =============================================================================

func TestNewRun_ValidInput(t *testing.T) {
	run := createQueuedRun(t)

	assert.True(t, len(run.ID) > 4)
	assert.Contains(t, run.ID, "run_")
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.Equal(t, "registry.example.com/acme-food/calorie-counter:abc1234", run.ImageRef)
	require.Len(t, run.Steps, 3)
	for _, step := range run.Steps {
		assert.Equal(t, StepStatusPending, step.Status)
	}
}

func TestNewRun_InvalidCommitSHA(t *testing.T) {
	_, err := NewRun(createTestApp(t), "nope", []string{"build"}, []string{"build"})
	assert.ErrorIs(t, err, ErrCommitSHAInvalidFormat)
}

// =============================================================================
// Run Transition Tests
// =============================================================================

func TestRun_Transition_QueuedToRunning(t *testing.T) {
	run := createQueuedRun(t)

	err := run.Transition(RunStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.NotNil(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)
}

func TestRun_Transition_RunningToSucceeded(t *testing.T) {
	run := createQueuedRun(t)
	require.NoError(t, run.Transition(RunStatusRunning))

	err := run.Transition(RunStatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestRun_Transition_QueuedToSucceeded_Invalid(t *testing.T) {
	run := createQueuedRun(t)

	err := run.Transition(RunStatusSucceeded)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRun_Transition_TerminalIsFinal(t *testing.T) {
	run := createQueuedRun(t)
	require.NoError(t, run.Transition(RunStatusRunning))
	require.NoError(t, run.Transition(RunStatusSucceeded))

	assert.ErrorIs(t, run.Transition(RunStatusRunning), ErrInvalidTransition)
	assert.ErrorIs(t, run.Transition(RunStatusFailed), ErrInvalidTransition)
}

// =============================================================================
// Run Failure Tests
// =============================================================================

func TestRun_Fail_SkipsPendingSteps(t *testing.T) {
	run := createQueuedRun(t)
	require.NoError(t, run.Transition(RunStatusRunning))

	run.StartStep(0)
	run.FinishStep(0, "built registry.example.com/acme-food/calorie-counter:abc1234")
	run.StartStep(1)
	run.FailStep(1, "push: connection refused")

	err := run.Fail("step push-image failed")
	require.NoError(t, err)

	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "step push-image failed", run.ErrorMessage)
	assert.Equal(t, StepStatusSucceeded, run.Steps[0].Status)
	assert.Equal(t, StepStatusFailed, run.Steps[1].Status)
	assert.Equal(t, "push: connection refused", run.Steps[1].Error)
	assert.Equal(t, StepStatusSkipped, run.Steps[2].Status)
	assert.Nil(t, run.Steps[2].StartedAt)
}

func TestRun_Fail_FromQueued_Invalid(t *testing.T) {
	// A run fails only while running; the worker always transitions a
	// claimed run to running before anything can go wrong.
	run := createQueuedRun(t)

	err := run.Fail("pipeline no longer parses")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, RunStatusQueued, run.Status)
}

// =============================================================================
// Step Timestamp Tests
// =============================================================================

func TestRun_StepLifecycleTimestamps(t *testing.T) {
	run := createQueuedRun(t)
	require.NoError(t, run.Transition(RunStatusRunning))

	run.StartStep(0)
	assert.NotNil(t, run.Steps[0].StartedAt)
	assert.Nil(t, run.Steps[0].FinishedAt)

	run.FinishStep(0, "done")
	assert.NotNil(t, run.Steps[0].FinishedAt)
	assert.Equal(t, "done", run.Steps[0].Detail)
}

func TestRun_StepDetailTruncated(t *testing.T) {
	run := createQueuedRun(t)
	require.NoError(t, run.Transition(RunStatusRunning))

	long := strings.Repeat("x", maxStepDetail+100)

	run.StartStep(0)
	run.FinishStep(0, long)
	assert.Len(t, run.Steps[0].Detail, maxStepDetail+len("... (truncated)"))

	run.StartStep(1)
	run.FailStep(1, long)
	assert.Contains(t, run.Steps[1].Error, "truncated")
}
