// Package imagespec contains pure functions for parsing image build specs
// and rendering them to Dockerfiles. This is part of the Functional Core -
// all functions are pure with no I/O.
package imagespec

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput  = errors.New("image spec is empty")
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Field validation errors
	ErrBaseRequired     = errors.New("base image is required")
	ErrCommandRequired  = errors.New("command is required")
	ErrInvalidPort      = errors.New("invalid exposed port")
	ErrInvalidCopyEntry = errors.New("copy entry must have source and destination")
	ErrInvalidEnvKey    = errors.New("invalid environment variable name")
	ErrUnsafePath       = errors.New("path must not escape the build context")
)

// SpecError wraps errors with context about which field failed validation.
type SpecError struct {
	Field   string // e.g., "copy[1].dest"
	Message string
	Err     error
}

func (e *SpecError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *SpecError) Unwrap() error {
	return e.Err
}

// NewSpecError creates a new SpecError.
func NewSpecError(field, message string, err error) *SpecError {
	return &SpecError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
