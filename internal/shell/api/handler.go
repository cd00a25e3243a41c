// Package api provides HTTP handlers for the Shipyard API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/samaanhq/shipyard/internal/core/compose"
	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/core/imagespec"
	"github.com/samaanhq/shipyard/internal/core/lint"
	"github.com/samaanhq/shipyard/internal/core/pipeline"
	apimw "github.com/samaanhq/shipyard/internal/shell/api/middleware"
	"github.com/samaanhq/shipyard/internal/shell/api/openapi"
	"github.com/samaanhq/shipyard/internal/shell/docker"
	"github.com/samaanhq/shipyard/internal/shell/secrets"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store        store.Store
	docker       docker.Client
	orchestrator *docker.Orchestrator
	secrets      *secrets.Manager
	openapi      *openapi.Generator
	logger       *slog.Logger
	authEnabled  bool
}

// NewHandler creates a new API handler. envDir is the base directory for
// resolving relative env_file paths in compose artifacts.
func NewHandler(s store.Store, d docker.Client, sec *secrets.Manager, l *slog.Logger, envDir string, authEnabled bool) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:        s,
		docker:       d,
		orchestrator: docker.NewOrchestrator(d, l, envDir),
		secrets:      sec,
		openapi:      newSpecGenerator(),
		logger:       l,
		authEnabled:  authEnabled,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// OpenAPI specification
	r.Get("/openapi.json", h.openapi.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if h.authEnabled {
			auth := apimw.NewAuthMiddleware(apimw.AuthConfig{
				Tokens:         h.store,
				AllowBootstrap: true,
				Logger:         h.logger,
			})
			r.Use(auth.Handler)
		}

		// App routes
		r.Route("/apps", func(r chi.Router) {
			r.Post("/", h.handleCreateApp)
			r.Get("/", h.handleListApps)
			r.Get("/{id}", h.handleGetApp)
			r.Put("/{id}", h.handleUpdateApp)
			r.Delete("/{id}", h.handleDeleteApp)
			r.Post("/{id}/lint", h.handleLintApp)
			r.Post("/{id}/runs", h.handleCreateRun)
			r.Get("/{id}/runs", h.handleListRuns)
			r.Get("/{id}/releases", h.handleListReleases)
			r.Get("/{id}/stack", h.handleGetStack)
			r.Post("/{id}/stack/up", h.handleStackUp)
			r.Post("/{id}/stack/down", h.handleStackDown)
		})

		// Run routes
		r.Get("/runs/{id}", h.handleGetRun)

		// Secret routes
		r.Route("/secrets", func(r chi.Router) {
			r.Post("/", h.handleCreateSecret)
			r.Get("/", h.handleListSecrets)
			r.Delete("/{name}", h.handleDeleteSecret)
		})

		// Token routes
		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.handleCreateToken)
			r.Get("/", h.handleListTokens)
			r.Delete("/{id}", h.handleRevokeToken)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	checks["database"] = "ok"

	if err := h.docker.Ping(); err != nil {
		checks["docker"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["docker"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// App Handlers
// =============================================================================

func (h *Handler) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req CreateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	app, err := domain.NewApp(req.Name, req.ProjectID, req.Registry)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	app.Description = req.Description

	if err := h.store.CreateApp(r.Context(), app); err != nil {
		if isDuplicate(err) {
			h.writeError(w, http.StatusConflict, "an app with this name already exists", "app_exists")
			return
		}
		h.logger.Error("failed to create app", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create app", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, appToResponse(app))
}

func (h *Handler) handleGetApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, appToResponse(app))
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	apps, err := h.store.ListApps(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list apps", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list apps", "internal_error")
		return
	}

	resp := ListAppsResponse{
		Apps:   make([]AppResponse, 0, len(apps)),
		Total:  len(apps),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range apps {
		resp.Apps = append(resp.Apps, appToResponse(&apps[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	var req UpdateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	// Artifacts are validated before they are accepted; a broken document
	// never replaces a working one.
	if req.ImageSpec != nil && *req.ImageSpec != "" {
		if _, err := imagespec.ParseImageSpec(*req.ImageSpec); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid image spec: "+err.Error(), "artifact_invalid")
			return
		}
	}
	if req.ComposeSpec != nil && *req.ComposeSpec != "" {
		if _, err := compose.ParseStackSpec(*req.ComposeSpec); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid compose spec: "+err.Error(), "artifact_invalid")
			return
		}
	}
	if req.Pipeline != nil && *req.Pipeline != "" {
		if _, err := pipeline.ParsePipeline(*req.Pipeline); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid pipeline: "+err.Error(), "artifact_invalid")
			return
		}
	}

	if req.Description != nil {
		app.Description = *req.Description
	}
	if req.ImageSpec != nil {
		app.ImageSpec = *req.ImageSpec
	}
	if req.ComposeSpec != nil {
		app.ComposeSpec = *req.ComposeSpec
	}
	if req.Pipeline != nil {
		app.Pipeline = *req.Pipeline
	}

	if err := h.store.UpdateApp(r.Context(), app); err != nil {
		h.logger.Error("failed to update app", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update app", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, appToResponse(app))
}

func (h *Handler) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	// An app with a running stack cannot be deleted out from under it.
	stack, err := h.store.GetStack(r.Context(), app.ID)
	if err == nil && stack.Status != domain.StackStatusDown && stack.Status != domain.StackStatusFailed {
		h.writeError(w, http.StatusConflict, "stack must be down before the app can be deleted", "stack_running")
		return
	}

	if err := h.store.DeleteApp(r.Context(), app.ID); err != nil {
		h.logger.Error("failed to delete app", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete app", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Lint Handler
// =============================================================================

func (h *Handler) handleLintApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	known, err := h.secrets.List(r.Context(), store.ListOptions{Limit: 1000})
	if err != nil {
		h.logger.Error("failed to list secrets for lint", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to lint app", "internal_error")
		return
	}
	names := make([]string, 0, len(known))
	for _, s := range known {
		names = append(names, s.Name)
	}

	report := lint.Lint(lint.Input{
		ImageSpecYAML: app.ImageSpec,
		ComposeYAML:   app.ComposeSpec,
		PipelineYAML:  app.Pipeline,
		KnownSecrets:  names,
		ImageRepo:     app.ImageRepo(),
	})

	resp := LintResponse{
		OK:       report.OK(),
		Findings: make([]LintFindingResponse, 0, len(report.Findings)),
	}
	for _, f := range report.Findings {
		resp.Findings = append(resp.Findings, LintFindingResponse{
			Severity: string(f.Severity),
			Artifact: f.Artifact,
			Code:     f.Code,
			Message:  f.Message,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if app.Pipeline == "" {
		h.writeError(w, http.StatusConflict, "app has no pipeline configured", "pipeline_missing")
		return
	}

	p, err := pipeline.ParsePipeline(app.Pipeline)
	if err != nil {
		h.writeError(w, http.StatusConflict, "stored pipeline is invalid: "+err.Error(), "pipeline_invalid")
		return
	}

	run, err := domain.NewRun(app, req.CommitSHA, p.StepNames(), p.StepActions())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateRun(r.Context(), run); err != nil {
		h.logger.Error("failed to create run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create run", "internal_error")
		return
	}

	h.logger.Info("run queued", "run_id", run.ID, "app_id", app.ID, "commit_sha", run.CommitSHA)
	h.writeJSON(w, http.StatusAccepted, runToResponse(run))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	opts := listOptions(r)
	runs, err := h.store.ListRunsByApp(r.Context(), app.ID, opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Total:  len(runs),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Release Handlers
// =============================================================================

func (h *Handler) handleListReleases(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	opts := listOptions(r)
	releases, err := h.store.ListReleasesByApp(r.Context(), app.ID, opts)
	if err != nil {
		h.logger.Error("failed to list releases", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list releases", "internal_error")
		return
	}

	resp := ListReleasesResponse{
		Releases: make([]ReleaseResponse, 0, len(releases)),
		Total:    len(releases),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for _, rel := range releases {
		resp.Releases = append(resp.Releases, releaseToResponse(&rel))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

// loadApp fetches the app addressed by the {id} URL parameter, writing the
// error response itself when the app cannot be served.
func (h *Handler) loadApp(w http.ResponseWriter, r *http.Request) (*domain.App, bool) {
	id := chi.URLParam(r, "id")

	app, err := h.store.GetApp(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "app not found", "app_not_found")
			return nil, false
		}
		h.logger.Error("failed to get app", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get app", "internal_error")
		return nil, false
	}
	return app, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func listOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

func appToResponse(a *domain.App) AppResponse {
	return AppResponse{
		ID:          a.ID,
		Name:        a.Name,
		Slug:        a.Slug,
		ProjectID:   a.ProjectID,
		Registry:    a.Registry,
		Description: a.Description,
		ImageSpec:   a.ImageSpec,
		ComposeSpec: a.ComposeSpec,
		Pipeline:    a.Pipeline,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func runToResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:           run.ID,
		AppID:        run.AppID,
		CommitSHA:    run.CommitSHA,
		ImageRef:     run.ImageRef,
		Status:       string(run.Status),
		Steps:        make([]StepResponse, 0, len(run.Steps)),
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
	for _, s := range run.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			Name:       s.Name,
			Action:     s.Action,
			Status:     string(s.Status),
			Detail:     s.Detail,
			Error:      s.Error,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
		})
	}
	return resp
}

func releaseToResponse(rel *domain.Release) ReleaseResponse {
	return ReleaseResponse{
		ID:        rel.ID,
		AppID:     rel.AppID,
		RunID:     rel.RunID,
		CommitSHA: rel.CommitSHA,
		ImageRef:  rel.ImageRef,
		Target:    rel.Target,
		CreatedAt: rel.CreatedAt,
	}
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}

// isDuplicate checks if an error is a uniqueness violation.
func isDuplicate(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		inner := storeErr.Unwrap()
		return errors.Is(inner, store.ErrDuplicateSlug) ||
			errors.Is(inner, store.ErrDuplicateName) ||
			errors.Is(inner, store.ErrDuplicateID)
	}
	return false
}
