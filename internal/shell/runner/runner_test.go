package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/core/pipeline"
	"github.com/samaanhq/shipyard/internal/shell/docker"
	"github.com/samaanhq/shipyard/internal/shell/platform"
	"github.com/samaanhq/shipyard/internal/shell/secrets"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

const testImageSpec = `base: python:3.11-slim
workdir: /app
copy:
  - src: requirements.txt
    dest: .
  - src: .
    dest: .
run:
  - pip install --no-cache-dir -r requirements.txt
port: 8501
command: ["streamlit", "run", "app.py", "--server.port=8501"]
`

const testPipeline = `substitutions:
  _REGION: nyc
steps:
  - name: build-image
    action: build
  - name: push-image
    action: push
  - name: deploy-app
    action: deploy
    target: http
    region: ${_REGION}
    env:
      LOG_LEVEL: info
    secrets:
      DB_PASSWORD: db-password
`

// =============================================================================
// Fakes
// =============================================================================

// fakeDocker records build and push calls.
type fakeDocker struct {
	docker.Client

	builds   []docker.BuildParams
	pushes   []string
	pushAuth []docker.RegistryAuth
	buildErr error
	pushErr  error
}

func (f *fakeDocker) BuildImage(_ context.Context, params docker.BuildParams) (string, error) {
	if f.buildErr != nil {
		return "", f.buildErr
	}
	f.builds = append(f.builds, params)
	return "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", nil
}

func (f *fakeDocker) PushImage(_ context.Context, imageRef string, auth docker.RegistryAuth) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, imageRef)
	f.pushAuth = append(f.pushAuth, auth)
	return nil
}

// fakeRegistry returns fixed credentials.
type fakeRegistry struct {
	calls int
	err   error
}

func (f *fakeRegistry) Credentials(_ context.Context) (docker.RegistryAuth, error) {
	f.calls++
	if f.err != nil {
		return docker.RegistryAuth{}, f.err
	}
	return docker.RegistryAuth{
		Username:      "robot",
		Password:      "hunter2",
		ServerAddress: "registry.example.com",
	}, nil
}

// fakeTarget records deploy requests.
type fakeTarget struct {
	name     string
	requests []platform.DeployRequest
	err      error
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Deploy(_ context.Context, req platform.DeployRequest) (*platform.DeployResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &platform.DeployResult{
		PlatformID: "plat-" + req.AppSlug,
		URL:        "https://" + req.AppSlug + ".example.app",
	}, nil
}

// =============================================================================
// Fixtures
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store   store.Store
	docker  *fakeDocker
	reg     *fakeRegistry
	target  *fakeTarget
	secrets *secrets.Manager
	runner  *Runner
}

func setupTestRunner(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := discardLogger()
	fd := &fakeDocker{}
	reg := &fakeRegistry{}
	target := &fakeTarget{name: "http"}
	sec := secrets.NewManager(st, logger, secrets.NewLocalBackend("test-master-key"))

	r := NewRunner(st, fd, reg, sec, map[string]platform.Target{"http": target}, "", logger)

	return &testEnv{store: st, docker: fd, reg: reg, target: target, secrets: sec, runner: r}
}

func createTestApp(t *testing.T, env *testEnv) *domain.App {
	t.Helper()

	app, err := domain.NewApp("Calorie Counter", "acme-platform", "registry.example.com")
	require.NoError(t, err)
	app.ImageSpec = testImageSpec
	app.Pipeline = testPipeline
	require.NoError(t, env.store.CreateApp(context.Background(), app))

	_, err = env.secrets.Set(context.Background(), "db-password", "local", "s3cret-pg")
	require.NoError(t, err)

	return app
}

func createTestRun(t *testing.T, env *testEnv, app *domain.App) *domain.Run {
	t.Helper()

	p, err := pipeline.ParsePipeline(app.Pipeline)
	require.NoError(t, err)

	sha := strings.Repeat("ab", 20)
	run, err := domain.NewRun(app, sha, p.StepNames(), p.StepActions())
	require.NoError(t, err)
	require.NoError(t, env.store.CreateRun(context.Background(), run))
	return run
}

// =============================================================================
// Runner Tests
// =============================================================================

func TestRunnerExecuteSuccess(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	err := env.runner.Execute(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	for _, step := range run.Steps {
		assert.Equal(t, domain.StepStatusSucceeded, step.Status)
	}

	// Build tagged with the run's image reference, Dockerfile rendered from
	// the image definition.
	require.Len(t, env.docker.builds, 1)
	build := env.docker.builds[0]
	assert.Equal(t, []string{run.ImageRef}, build.Tags)
	assert.Contains(t, build.Dockerfile, "FROM python:3.11-slim")
	assert.Contains(t, build.Dockerfile, "EXPOSE 8501")

	// Push used registry credentials.
	assert.Equal(t, []string{run.ImageRef}, env.docker.pushes)
	assert.Equal(t, 1, env.reg.calls)
	assert.Equal(t, "robot", env.docker.pushAuth[0].Username)

	// Deploy received the resolved region, env, and the plaintext secret.
	require.Len(t, env.target.requests, 1)
	req := env.target.requests[0]
	assert.Equal(t, app.Slug, req.AppSlug)
	assert.Equal(t, run.ImageRef, req.ImageRef)
	assert.Equal(t, "nyc", req.Region)
	assert.Equal(t, 8501, req.Port)
	assert.Equal(t, "info", req.Env["LOG_LEVEL"])
	assert.Equal(t, "s3cret-pg", req.Secrets["DB_PASSWORD"])
}

func TestRunnerExecutePersistsProgress(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	require.NoError(t, env.runner.Execute(context.Background(), run))

	stored, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, stored.Status)
	require.Len(t, stored.Steps, 3)
	assert.NotNil(t, stored.FinishedAt)
	assert.Contains(t, stored.Steps[0].Detail, "built "+run.ImageRef)
}

func TestRunnerExecuteRecordsRelease(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	require.NoError(t, env.runner.Execute(context.Background(), run))

	release, err := env.store.LatestRelease(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, release.RunID)
	assert.Equal(t, run.ImageRef, release.ImageRef)
	assert.Equal(t, "http", release.Target)
}

func TestRunnerExecuteBuildFailureSkipsRest(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	env.docker.buildErr = errors.New("layer cache corrupted")

	err := env.runner.Execute(context.Background(), run)
	require.Error(t, err)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.StepStatusFailed, run.Steps[0].Status)
	assert.Equal(t, domain.StepStatusSkipped, run.Steps[1].Status)
	assert.Equal(t, domain.StepStatusSkipped, run.Steps[2].Status)
	assert.Empty(t, env.docker.pushes)
	assert.Empty(t, env.target.requests)

	stored, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "build-image")
}

func TestRunnerExecutePushFailure(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	env.docker.pushErr = errors.New("denied: requested access to the resource is denied")

	err := env.runner.Execute(context.Background(), run)
	require.Error(t, err)

	assert.Equal(t, domain.StepStatusSucceeded, run.Steps[0].Status)
	assert.Equal(t, domain.StepStatusFailed, run.Steps[1].Status)
	assert.Equal(t, domain.StepStatusSkipped, run.Steps[2].Status)

	// No release recorded when the deploy never ran.
	_, err = env.store.LatestRelease(context.Background(), app.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunnerExecuteMissingSecret(t *testing.T) {
	env := setupTestRunner(t)

	app, err := domain.NewApp("Calorie Counter", "acme-platform", "registry.example.com")
	require.NoError(t, err)
	app.ImageSpec = testImageSpec
	app.Pipeline = testPipeline
	require.NoError(t, env.store.CreateApp(context.Background(), app))

	run := createTestRun(t, env, app)

	err = env.runner.Execute(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db-password")
	assert.Equal(t, domain.StepStatusFailed, run.Steps[2].Status)
}

func TestRunnerExecuteDeployErrorRedactsSecrets(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	// Platform errors can quote the request payload back.
	env.target.err = errors.New(`platform rejected payload {"DB_PASSWORD":"s3cret-pg"}`)

	err := env.runner.Execute(context.Background(), run)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cret-pg")
	assert.Contains(t, err.Error(), domain.RedactedValue)

	stored, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Steps[2].Error, "s3cret-pg")
	assert.Contains(t, stored.Steps[2].Error, domain.RedactedValue)
}

func TestRunnerExecuteUnknownTarget(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	app.Pipeline = strings.ReplaceAll(app.Pipeline, "target: http", "target: digitalocean")
	require.NoError(t, env.store.UpdateApp(context.Background(), app))

	run := createTestRun(t, env, app)

	err := env.runner.Execute(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy-app")
	assert.Equal(t, domain.RunStatusFailed, run.Status)
}

func TestRunnerExecuteNoPipeline(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	run := createTestRun(t, env, app)

	app.Pipeline = ""
	require.NoError(t, env.store.UpdateApp(context.Background(), app))

	err := env.runner.Execute(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNoPipeline.Error())
	assert.Equal(t, domain.RunStatusFailed, run.Status)
}

// =============================================================================
// Worker Tests
// =============================================================================

func TestWorkerExecuteNextDrainsQueue(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	first := createTestRun(t, env, app)
	second := createTestRun(t, env, app)

	w := NewWorker(env.store, env.runner, DefaultWorkerConfig(), discardLogger())

	assert.True(t, w.executeNext(context.Background()))
	assert.True(t, w.executeNext(context.Background()))
	assert.False(t, w.executeNext(context.Background()))

	for _, id := range []string{first.ID, second.ID} {
		stored, err := env.store.GetRun(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusSucceeded, stored.Status)
	}
}

func TestWorkerFailedRunDoesNotBlockQueue(t *testing.T) {
	env := setupTestRunner(t)
	app := createTestApp(t, env)
	first := createTestRun(t, env, app)

	env.docker.buildErr = errors.New("no space left on device")
	w := NewWorker(env.store, env.runner, DefaultWorkerConfig(), discardLogger())

	assert.True(t, w.executeNext(context.Background()))

	env.docker.buildErr = nil
	second := createTestRun(t, env, app)
	assert.True(t, w.executeNext(context.Background()))

	storedFirst, err := env.store.GetRun(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, storedFirst.Status)

	storedSecond, err := env.store.GetRun(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, storedSecond.Status)
}

func TestWorkerStartStop(t *testing.T) {
	env := setupTestRunner(t)
	config := DefaultWorkerConfig()
	config.Interval = 10 * time.Millisecond
	config.InitialDelay = 0

	w := NewWorker(env.store, env.runner, config, discardLogger())
	w.Start()
	w.Stop()
}
