package domain

import (
	"time"

	"github.com/segmentio/ksuid"
)

// =============================================================================
// Run Status
// =============================================================================

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// validRunTransitions defines the allowed run status transitions.
var validRunTransitions = map[RunStatus][]RunStatus{
	RunStatusQueued:    {RunStatusRunning},
	RunStatusRunning:   {RunStatusSucceeded, RunStatusFailed},
	RunStatusSucceeded: {}, // Terminal state
	RunStatusFailed:    {}, // Terminal state
}

// ValidateRunTransition checks if a run status transition is valid.
func ValidateRunTransition(from, to RunStatus) error {
	allowed, exists := validRunTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// IsTerminal reports whether the status is a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// =============================================================================
// Step Status
// =============================================================================

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// =============================================================================
// Step Result
// =============================================================================

// StepResult records the outcome of a single pipeline step within a run.
type StepResult struct {
	Name       string     `json:"name"`
	Action     string     `json:"action"`
	Status     StepStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// =============================================================================
// Run
// =============================================================================

// Run represents a single execution of an app's pipeline against a commit.
type Run struct {
	ID           string       `json:"id"`
	AppID        string       `json:"app_id"`
	CommitSHA    string       `json:"commit_sha"`
	ImageRef     string       `json:"image_ref"`
	Status       RunStatus    `json:"status"`
	Steps        []StepResult `json:"steps"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// NewRun creates a queued run for the given app and commit. The step list
// mirrors the app's pipeline steps, all pending.
func NewRun(app *App, commitSHA string, stepNames []string, stepActions []string) (*Run, error) {
	if err := ValidateCommitSHA(commitSHA); err != nil {
		return nil, err
	}

	steps := make([]StepResult, len(stepNames))
	for i, name := range stepNames {
		steps[i] = StepResult{
			Name:   name,
			Action: stepActions[i],
			Status: StepStatusPending,
		}
	}

	now := time.Now().UTC()
	return &Run{
		ID:        "run_" + ksuid.New().String(),
		AppID:     app.ID,
		CommitSHA: commitSHA,
		ImageRef:  app.ImageRef(commitSHA),
		Status:    RunStatusQueued,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition attempts to transition the run to a new status. Timestamps are
// set on entering running and on reaching a terminal state.
func (r *Run) Transition(to RunStatus) error {
	if err := ValidateRunTransition(r.Status, to); err != nil {
		return err
	}

	r.Status = to
	now := time.Now().UTC()
	r.UpdatedAt = now

	if to == RunStatusRunning {
		r.StartedAt = &now
	}
	if to.IsTerminal() {
		r.FinishedAt = &now
	}

	return nil
}

// Fail transitions the run to failed with an error message and marks every
// step that never started as skipped.
func (r *Run) Fail(errorMessage string) error {
	if err := r.Transition(RunStatusFailed); err != nil {
		return err
	}
	r.ErrorMessage = errorMessage
	for i := range r.Steps {
		if r.Steps[i].Status == StepStatusPending {
			r.Steps[i].Status = StepStatusSkipped
		}
	}
	return nil
}

// StartStep marks the step at index i as running.
func (r *Run) StartStep(i int) {
	now := time.Now().UTC()
	r.Steps[i].Status = StepStatusRunning
	r.Steps[i].StartedAt = &now
	r.UpdatedAt = now
}

// maxStepDetail bounds what one step may persist; executors can produce
// arbitrarily long output on failure.
const maxStepDetail = 4096

// FinishStep marks the step at index i as succeeded with an optional detail.
func (r *Run) FinishStep(i int, detail string) {
	now := time.Now().UTC()
	r.Steps[i].Status = StepStatusSucceeded
	r.Steps[i].Detail = truncate(detail, maxStepDetail)
	r.Steps[i].FinishedAt = &now
	r.UpdatedAt = now
}

// FailStep marks the step at index i as failed with an error message.
func (r *Run) FailStep(i int, errorMessage string) {
	now := time.Now().UTC()
	r.Steps[i].Status = StepStatusFailed
	r.Steps[i].Error = truncate(errorMessage, maxStepDetail)
	r.Steps[i].FinishedAt = &now
	r.UpdatedAt = now
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
