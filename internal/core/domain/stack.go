package domain

import "time"

// =============================================================================
// Stack Status
// =============================================================================

// StackStatus tracks the local multi-service environment of an app. A stack
// exists as soon as the app has a compose artifact; "down" is the initial
// state rather than an error.
type StackStatus string

const (
	StackStatusDown     StackStatus = "down"
	StackStatusStarting StackStatus = "starting"
	StackStatusUp       StackStatus = "up"
	StackStatusStopping StackStatus = "stopping"
	StackStatusFailed   StackStatus = "failed"
)

// validStackTransitions defines the allowed stack status transitions.
// A failed stack can be retried directly.
var validStackTransitions = map[StackStatus][]StackStatus{
	StackStatusDown:     {StackStatusStarting},
	StackStatusStarting: {StackStatusUp, StackStatusFailed},
	StackStatusUp:       {StackStatusStopping, StackStatusFailed},
	StackStatusStopping: {StackStatusDown, StackStatusFailed},
	StackStatusFailed:   {StackStatusStarting, StackStatusStopping},
}

// ValidateStackTransition checks if a stack status transition is valid.
func ValidateStackTransition(from, to StackStatus) error {
	allowed, exists := validStackTransitions[from]
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

// =============================================================================
// Stack
// =============================================================================

// ServiceInfo describes one container of a running stack.
type ServiceInfo struct {
	ContainerID string `json:"container_id"`
	ServiceName string `json:"service_name"`
	Image       string `json:"image"`
	State       string `json:"state"`
}

// Stack is the runtime view of an app's compose environment.
type Stack struct {
	AppID        string        `json:"app_id"`
	Status       StackStatus   `json:"status"`
	Services     []ServiceInfo `json:"services,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
}

// NewStack creates a stack in the down state for an app.
func NewStack(appID string) *Stack {
	return &Stack{
		AppID:     appID,
		Status:    StackStatusDown,
		UpdatedAt: time.Now().UTC(),
	}
}

// Transition attempts to transition the stack to a new status.
func (s *Stack) Transition(to StackStatus) error {
	if err := ValidateStackTransition(s.Status, to); err != nil {
		return err
	}

	s.Status = to
	now := time.Now().UTC()
	s.UpdatedAt = now

	// Clear stale state on retry
	if to == StackStatusStarting {
		s.ErrorMessage = ""
	}
	if to == StackStatusUp {
		s.StartedAt = &now
	}
	if to == StackStatusDown {
		s.StartedAt = nil
		s.Services = nil
	}

	return nil
}

// TransitionToFailed records a failure with an error message. Allowed from
// starting, up, and stopping, so a failed stack stays recoverable in either
// direction.
func (s *Stack) TransitionToFailed(errorMessage string) error {
	if err := s.Transition(StackStatusFailed); err != nil {
		return err
	}
	s.ErrorMessage = errorMessage
	return nil
}
