// Package pipeline contains pure functions for parsing delivery pipelines
// and resolving their substitution variables. This is part of the Functional
// Core - all functions are pure with no I/O.
package pipeline

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput  = errors.New("pipeline is empty")
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrNoSteps           = errors.New("pipeline must define at least one step")
	ErrDuplicateStepName = errors.New("duplicate step name")
	ErrUnknownAction     = errors.New("unknown step action")
	ErrDuplicateAction   = errors.New("each action may appear at most once")
	ErrStepOutOfOrder    = errors.New("steps must follow build, push, deploy order")

	// Step validation errors
	ErrDeployTargetRequired = errors.New("deploy step requires a target")
	ErrUnknownTarget        = errors.New("unknown deploy target")

	// Substitution errors
	ErrInvalidUserVariable = errors.New("user-defined substitutions must start with an underscore")
	ErrUndeclaredVariable  = errors.New("reference to undeclared substitution variable")
)

// PipelineError wraps errors with context about which field failed.
type PipelineError struct {
	Field   string // e.g., "steps[2].target"
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(field, message string, err error) *PipelineError {
	return &PipelineError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
