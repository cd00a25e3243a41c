package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// CreateAppRequest is the request body for registering an app.
type CreateAppRequest struct {
	Name        string `json:"name"`
	ProjectID   string `json:"project_id"`
	Registry    string `json:"registry"`
	Description string `json:"description,omitempty"`
}

// UpdateAppRequest is the request body for updating an app. Nil fields are
// left unchanged; an artifact set to the empty string is cleared.
type UpdateAppRequest struct {
	Description *string `json:"description,omitempty"`
	ImageSpec   *string `json:"image_spec,omitempty"`
	ComposeSpec *string `json:"compose_spec,omitempty"`
	Pipeline    *string `json:"pipeline,omitempty"`
}

// CreateRunRequest is the request body for queueing a pipeline run.
type CreateRunRequest struct {
	CommitSHA string `json:"commit_sha"`
}

// StackUpRequest is the request body for bringing a stack up.
type StackUpRequest struct {
	Variables map[string]string `json:"variables,omitempty"`
}

// StackDownRequest is the request body for tearing a stack down.
type StackDownRequest struct {
	RemoveVolumes bool `json:"remove_volumes,omitempty"`
}

// CreateSecretRequest is the request body for creating or rotating a secret.
type CreateSecretRequest struct {
	Name    string `json:"name"`
	Backend string `json:"backend,omitempty"`
	Value   string `json:"value"`
}

// CreateTokenRequest is the request body for minting an API token.
type CreateTokenRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// Response Types
// =============================================================================

// AppResponse is the response for app operations.
type AppResponse struct {
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

// ListAppsResponse is the response for listing apps.
type ListAppsResponse struct {
	Apps   []AppResponse `json:"apps"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// StepResponse is one step's outcome within a run response.
type StepResponse struct {
	Name       string     `json:"name"`
	Action     string     `json:"action"`
	Status     string     `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunResponse is the response for run operations.
type RunResponse struct {
	ID           string         `json:"id"`
	AppID        string         `json:"app_id"`
	CommitSHA    string         `json:"commit_sha"`
	ImageRef     string         `json:"image_ref"`
	Status       string         `json:"status"`
	Steps        []StepResponse `json:"steps"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ReleaseResponse is the response for release operations.
type ReleaseResponse struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	RunID     string    `json:"run_id"`
	CommitSHA string    `json:"commit_sha"`
	ImageRef  string    `json:"image_ref"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// ListReleasesResponse is the response for listing releases.
type ListReleasesResponse struct {
	Releases []ReleaseResponse `json:"releases"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// LintFindingResponse is one lint finding.
type LintFindingResponse struct {
	Severity string `json:"severity"`
	Artifact string `json:"artifact"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// LintResponse is the response for linting an app's artifacts.
type LintResponse struct {
	OK       bool                  `json:"ok"`
	Findings []LintFindingResponse `json:"findings"`
}

// ServiceResponse is one running service within a stack response.
type ServiceResponse struct {
	ServiceName string `json:"service_name"`
	ContainerID string `json:"container_id"`
	Image       string `json:"image"`
	State       string `json:"state"`
}

// StackResponse is the response for stack operations.
type StackResponse struct {
	AppID        string            `json:"app_id"`
	Status       string            `json:"status"`
	Services     []ServiceResponse `json:"services"`
	ErrorMessage string            `json:"error_message,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SecretResponse is the response for secret operations. Values never leave
// the server; the value field always reads "***".
type SecretResponse struct {
	Name      string    `json:"name"`
	Backend   string    `json:"backend"`
	Version   int       `json:"version"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListSecretsResponse is the response for listing secrets.
type ListSecretsResponse struct {
	Secrets []SecretResponse `json:"secrets"`
	Total   int              `json:"total"`
}

// TokenResponse is the response for token operations. Token is populated
// only in the creation response.
type TokenResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Token     string     `json:"token,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ListTokensResponse is the response for listing active tokens.
type ListTokensResponse struct {
	Tokens []TokenResponse `json:"tokens"`
	Total  int             `json:"total"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
