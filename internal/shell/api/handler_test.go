package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaanhq/shipyard/internal/shell/docker"
	"github.com/samaanhq/shipyard/internal/shell/secrets"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeDocker implements docker.Client with canned responses.
type fakeDocker struct {
	pingErr error
	listErr error
	counter int
}

func (f *fakeDocker) CreateContainer(spec docker.ContainerSpec) (string, error) {
	f.counter++
	return "ctr-" + spec.Name, nil
}

func (f *fakeDocker) StartContainer(containerID string) error { return nil }

func (f *fakeDocker) StopContainer(containerID string, timeout *time.Duration) error { return nil }

func (f *fakeDocker) RemoveContainer(containerID string, opts docker.RemoveOptions) error { return nil }

func (f *fakeDocker) InspectContainer(containerID string) (*docker.ContainerInfo, error) {
	return &docker.ContainerInfo{ID: containerID, State: "running"}, nil
}

func (f *fakeDocker) ListContainers(opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	return nil, f.listErr
}

func (f *fakeDocker) ContainerLogs(containerID string, opts docker.LogOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeDocker) CreateNetwork(spec docker.NetworkSpec) (string, error) { return "net-1", nil }

func (f *fakeDocker) RemoveNetwork(networkID string) error { return nil }

func (f *fakeDocker) CreateVolume(spec docker.VolumeSpec) (string, error) { return spec.Name, nil }

func (f *fakeDocker) RemoveVolume(volumeName string, force bool) error { return nil }

func (f *fakeDocker) BuildImage(ctx context.Context, params docker.BuildParams) (string, error) {
	return "sha256:test", nil
}

func (f *fakeDocker) PushImage(ctx context.Context, imageRef string, auth docker.RegistryAuth) error {
	return nil
}

func (f *fakeDocker) TagImage(source, target string) error { return nil }

func (f *fakeDocker) PullImage(image string, opts docker.PullOptions) error { return nil }

func (f *fakeDocker) ImageExists(image string) (bool, error) { return true, nil }

func (f *fakeDocker) Ping() error { return f.pingErr }

func (f *fakeDocker) Close() error { return nil }

const testImageSpec = `base: python:3.11-slim
workdir: /app
copy:
  - src: .
    dest: .
run:
  - pip install --no-cache-dir -r requirements.txt
port: 8501
command: ["streamlit", "run", "app.py"]
`

const testComposeSpec = `services:
  app:
    image: registry.example.com/acme-platform/calorie-counter:latest
    ports:
      - "8501:8501"
    environment:
      DATABASE_URL: postgres://app:${DB_PASSWORD}@db:5432/app
    depends_on:
      - db
  db:
    image: postgres:15
    environment:
      POSTGRES_PASSWORD: ${DB_PASSWORD}
    volumes:
      - pgdata:/var/lib/postgresql/data
volumes:
  pgdata:
`

const testPipeline = `steps:
  - name: build-image
    action: build
  - name: push-image
    action: push
  - name: deploy-app
    action: deploy
    target: http
    secrets:
      DB_PASSWORD: db-password
`

type testServer struct {
	handler *Handler
	docker  *fakeDocker
	store   store.Store
	router  http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fd := &fakeDocker{}
	sec := secrets.NewManager(st, logger, secrets.NewLocalBackend("test-master-key"))

	h := NewHandler(st, fd, sec, logger, t.TempDir(), false)
	return &testServer{handler: h, docker: fd, store: st, router: h.Routes()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (ts *testServer) createApp(t *testing.T) AppResponse {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/apps", CreateAppRequest{
		Name:      "Calorie Counter",
		ProjectID: "acme-platform",
		Registry:  "registry.example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AppResponse](t, rec)
}

func (ts *testServer) setArtifacts(t *testing.T, appID string) AppResponse {
	t.Helper()

	img, comp, pipe := testImageSpec, testComposeSpec, testPipeline
	rec := ts.do(t, http.MethodPut, "/api/v1/apps/"+appID, UpdateAppRequest{
		ImageSpec:   &img,
		ComposeSpec: &comp,
		Pipeline:    &pipe,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[AppResponse](t, rec)
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealthEndpoints(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[ReadyResponse](t, rec).Status)
}

func TestReadyReportsDockerFailure(t *testing.T) {
	ts := setupTestServer(t)
	ts.docker.pingErr = assert.AnError

	rec := ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "failed", resp.Checks["docker"])
}

// =============================================================================
// App Tests
// =============================================================================

func TestCreateApp(t *testing.T) {
	ts := setupTestServer(t)

	app := ts.createApp(t)
	assert.Equal(t, "calorie-counter", app.Slug)
	assert.Equal(t, "acme-platform", app.ProjectID)
	assert.NotEmpty(t, app.ID)
}

func TestCreateAppValidation(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps", CreateAppRequest{
		Name:      "ab",
		ProjectID: "acme",
		Registry:  "registry.example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
}

func TestCreateAppDuplicateSlug(t *testing.T) {
	ts := setupTestServer(t)
	ts.createApp(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps", CreateAppRequest{
		Name:      "Calorie Counter",
		ProjectID: "other",
		Registry:  "registry.example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "app_exists", decode[ErrorResponse](t, rec).Code)
}

func TestGetAppNotFound(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/apps/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "app_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestUpdateAppArtifacts(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)

	updated := ts.setArtifacts(t, app.ID)
	assert.Equal(t, testImageSpec, updated.ImageSpec)
	assert.Equal(t, testPipeline, updated.Pipeline)
}

func TestUpdateAppRejectsInvalidArtifact(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)

	broken := "command: [\"run\"]\n" // no base image
	rec := ts.do(t, http.MethodPut, "/api/v1/apps/"+app.ID, UpdateAppRequest{
		ImageSpec: &broken,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "artifact_invalid", decode[ErrorResponse](t, rec).Code)

	// Stored artifact untouched
	rec = ts.do(t, http.MethodGet, "/api/v1/apps/"+app.ID, nil)
	assert.Empty(t, decode[AppResponse](t, rec).ImageSpec)
}

func TestListApps(t *testing.T) {
	ts := setupTestServer(t)
	ts.createApp(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/apps?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ListAppsResponse](t, rec)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 10, resp.Limit)
}

func TestDeleteApp(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)

	rec := ts.do(t, http.MethodDelete, "/api/v1/apps/"+app.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/apps/"+app.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Lint Tests
// =============================================================================

func TestLintApp(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)
	ts.setArtifacts(t, app.ID)

	// db-password is referenced by the pipeline but does not exist yet.
	rec := ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/lint", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[LintResponse](t, rec)
	assert.False(t, resp.OK)

	found := false
	for _, f := range resp.Findings {
		if strings.Contains(f.Message, "db-password") {
			found = true
		}
	}
	assert.True(t, found, "expected a finding about the missing secret")

	// After creating the secret the report clears.
	rec = ts.do(t, http.MethodPost, "/api/v1/secrets", CreateSecretRequest{
		Name:  "db-password",
		Value: "s3cret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/lint", nil)
	resp = decode[LintResponse](t, rec)
	assert.True(t, resp.OK, rec.Body.String())
}

// =============================================================================
// Run Tests
// =============================================================================

func TestCreateRun(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)
	ts.setArtifacts(t, app.ID)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/runs", CreateRunRequest{
		CommitSHA: strings.Repeat("ab", 20),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	run := decode[RunResponse](t, rec)
	assert.Equal(t, "queued", run.Status)
	assert.Equal(t, "registry.example.com/acme-platform/calorie-counter:"+strings.Repeat("ab", 20), run.ImageRef)
	require.Len(t, run.Steps, 3)
	assert.Equal(t, "build-image", run.Steps[0].Name)
	assert.Equal(t, "pending", run.Steps[0].Status)

	// The run is retrievable both directly and via the app.
	rec = ts.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/apps/"+app.ID+"/runs", nil)
	assert.Equal(t, 1, decode[ListRunsResponse](t, rec).Total)
}

func TestCreateRunWithoutPipeline(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/runs", CreateRunRequest{
		CommitSHA: strings.Repeat("ab", 20),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pipeline_missing", decode[ErrorResponse](t, rec).Code)
}

func TestCreateRunInvalidCommit(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)
	ts.setArtifacts(t, app.ID)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/runs", CreateRunRequest{
		CommitSHA: "not-a-sha",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReleasesEmpty(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/apps/"+app.ID+"/releases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ListReleasesResponse](t, rec).Total)
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStackLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)
	ts.setArtifacts(t, app.ID)

	// Initial state is down without any saved record.
	rec := ts.do(t, http.MethodGet, "/api/v1/apps/"+app.ID+"/stack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "down", decode[StackResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/up", StackUpRequest{
		Variables: map[string]string{"DB_PASSWORD": "pgpass"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	up := decode[StackResponse](t, rec)
	assert.Equal(t, "up", up.Status)
	require.Len(t, up.Services, 2)
	assert.Equal(t, "db", up.Services[0].ServiceName)
	assert.Equal(t, "app", up.Services[1].ServiceName)

	// A second up is rejected while the stack is running.
	rec = ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/up", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The app cannot be deleted while its stack is up.
	rec = ts.do(t, http.MethodDelete, "/api/v1/apps/"+app.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/down", StackDownRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "down", decode[StackResponse](t, rec).Status)
}

func TestStackDownFailureIsRecoverable(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)
	ts.setArtifacts(t, app.ID)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/up", StackUpRequest{
		Variables: map[string]string{"DB_PASSWORD": "pgpass"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A daemon error during teardown marks the stack failed instead of
	// leaving it stuck in stopping.
	ts.docker.listErr = assert.AnError
	rec = ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/down", StackDownRequest{})
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.Equal(t, "stack_failed", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/apps/"+app.ID+"/stack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[StackResponse](t, rec)
	assert.Equal(t, "failed", failed.Status)
	assert.NotEmpty(t, failed.ErrorMessage)

	// Once the daemon is back, the same down request succeeds.
	ts.docker.listErr = nil
	rec = ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/down", StackDownRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "down", decode[StackResponse](t, rec).Status)
}

func TestStackUpWithoutCompose(t *testing.T) {
	ts := setupTestServer(t)
	app := ts.createApp(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/apps/"+app.ID+"/stack/up", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "compose_missing", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// Secret Tests
// =============================================================================

func TestSecretLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/secrets", CreateSecretRequest{
		Name:  "db-password",
		Value: "s3cret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[SecretResponse](t, rec)
	assert.Equal(t, "***", created.Value)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "local", created.Backend)
	assert.NotContains(t, rec.Body.String(), "s3cret")

	// Rotation bumps the version.
	rec = ts.do(t, http.MethodPost, "/api/v1/secrets", CreateSecretRequest{
		Name:  "db-password",
		Value: "rotated",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[SecretResponse](t, rec).Version)

	rec = ts.do(t, http.MethodGet, "/api/v1/secrets", nil)
	resp := decode[ListSecretsResponse](t, rec)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "***", resp.Secrets[0].Value)

	rec = ts.do(t, http.MethodDelete, "/api/v1/secrets/db-password", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateSecretRequiresValue(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/secrets", CreateSecretRequest{Name: "db-password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Token and Auth Tests
// =============================================================================

func TestTokenLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/tokens", CreateTokenRequest{Name: "ci"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[TokenResponse](t, rec)
	assert.True(t, strings.HasPrefix(created.Token, "shp_"))

	// The plaintext never appears again.
	rec = ts.do(t, http.MethodGet, "/api/v1/tokens", nil)
	listed := decode[ListTokensResponse](t, rec)
	require.Equal(t, 1, listed.Total)
	assert.Empty(t, listed.Tokens[0].Token)

	rec = ts.do(t, http.MethodDelete, "/api/v1/tokens/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/tokens", nil)
	assert.Equal(t, 0, decode[ListTokensResponse](t, rec).Total)
}

func TestAuthMiddleware(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sec := secrets.NewManager(st, logger, secrets.NewLocalBackend("test-master-key"))
	h := NewHandler(st, &fakeDocker{}, sec, logger, t.TempDir(), true)
	router := h.Routes()

	// Bootstrap: no tokens exist, so the first token request passes.
	body, _ := json.Marshal(CreateTokenRequest{Name: "admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// With a token minted, anonymous requests are rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/apps", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/apps", nil)
	req.Header.Set("Authorization", "Bearer shp_wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The minted token works.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/apps", nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// OpenAPI Tests
// =============================================================================

func TestOpenAPISpec(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var spec map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Equal(t, "3.0.3", spec["openapi"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/apps")
	assert.Contains(t, paths, "/api/v1/apps/{id}/stack/up")
	assert.Contains(t, paths, "/api/v1/secrets")
}
