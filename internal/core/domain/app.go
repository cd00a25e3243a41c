// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// Name validation errors
	ErrNameRequired     = errors.New("name is required")
	ErrNameTooShort     = errors.New("name must be at least 3 characters")
	ErrNameTooLong      = errors.New("name must be at most 100 characters")
	ErrNameInvalidChars = errors.New("name can only contain alphanumeric characters, spaces, and hyphens")

	// Project validation errors
	ErrProjectIDRequired      = errors.New("project id is required")
	ErrProjectIDInvalidFormat = errors.New("project id can only contain lowercase alphanumeric characters and hyphens")

	// Registry validation errors
	ErrRegistryRequired = errors.New("registry is required")

	// Commit validation errors
	ErrCommitSHARequired      = errors.New("commit sha is required")
	ErrCommitSHAInvalidFormat = errors.New("commit sha must be a 7-40 character hex string")

	// State transition errors
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// App
// =============================================================================

// App represents a registered application: a named project plus the three
// configuration artifacts that describe how to build, run, and ship it.
// The artifact documents are stored verbatim and parsed on demand, so an
// app can be registered before its artifacts are complete.
type App struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	ProjectID   string    `json:"project_id"`
	Registry    string    `json:"registry"`
	Description string    `json:"description,omitempty"`
	ImageSpec   string    `json:"image_spec,omitempty"`
	ComposeSpec string    `json:"compose_spec,omitempty"`
	Pipeline    string    `json:"pipeline,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewApp creates a new app with the given name, project id, and registry.
// Returns an error if validation fails.
func NewApp(name, projectID, registry string) (*App, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	if registry == "" {
		return nil, ErrRegistryRequired
	}

	now := time.Now().UTC()
	return &App{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      Slugify(name),
		ProjectID: projectID,
		Registry:  registry,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ImageRepo returns the repository part of the app's image references:
// registry/projectID/slug.
func (a *App) ImageRepo() string {
	return a.Registry + "/" + a.ProjectID + "/" + a.Slug
}

// ImageRef returns the fully qualified image reference for a commit:
// registry/projectID/slug:commitSHA.
func (a *App) ImageRef(commitSHA string) string {
	return a.ImageRepo() + ":" + commitSHA
}

// HasArtifacts reports whether all three artifacts are present.
func (a *App) HasArtifacts() bool {
	return a.ImageSpec != "" && a.ComposeSpec != "" && a.Pipeline != ""
}

// =============================================================================
// Validation Functions (Pure)
// =============================================================================

var (
	nameRegex      = regexp.MustCompile(`^[a-zA-Z0-9\s\-]+$`)
	projectIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*$`)
	commitSHARegex = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
)

// ValidateName validates an app name.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	if len(name) < 3 {
		return ErrNameTooShort
	}
	if len(name) > 100 {
		return ErrNameTooLong
	}
	if !nameRegex.MatchString(name) {
		return ErrNameInvalidChars
	}
	return nil
}

// ValidateProjectID validates a project identifier.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return ErrProjectIDRequired
	}
	if !projectIDRegex.MatchString(projectID) {
		return ErrProjectIDInvalidFormat
	}
	return nil
}

// ValidateCommitSHA validates a git commit hash. Abbreviated hashes of at
// least 7 characters are accepted.
func ValidateCommitSHA(sha string) error {
	if sha == "" {
		return ErrCommitSHARequired
	}
	if !commitSHARegex.MatchString(sha) {
		return ErrCommitSHAInvalidFormat
	}
	return nil
}

// ShortSHA returns the first 7 characters of a commit hash.
func ShortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}
