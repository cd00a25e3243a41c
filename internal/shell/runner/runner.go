// Package runner executes delivery pipeline runs: build the image, push it
// to the registry, deploy it to the configured platform, one step at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/core/imagespec"
	"github.com/samaanhq/shipyard/internal/core/pipeline"
	"github.com/samaanhq/shipyard/internal/shell/docker"
	"github.com/samaanhq/shipyard/internal/shell/platform"
	"github.com/samaanhq/shipyard/internal/shell/registry"
	"github.com/samaanhq/shipyard/internal/shell/secrets"
	"github.com/samaanhq/shipyard/internal/shell/store"
)

var (
	ErrNoPipeline  = errors.New("app has no pipeline configured")
	ErrNoImageSpec = errors.New("app has no image definition")
)

// Runner executes pipeline runs.
type Runner struct {
	store    store.Store
	docker   docker.Client
	registry registry.Provider
	secrets  *secrets.Manager
	targets  map[string]platform.Target
	logger   *slog.Logger

	// workDir holds per-app build contexts; a missing directory means a
	// Dockerfile-only build.
	workDir string
}

// NewRunner creates a pipeline runner.
func NewRunner(st store.Store, dockerClient docker.Client, reg registry.Provider, sec *secrets.Manager, targets map[string]platform.Target, workDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    st,
		docker:   dockerClient,
		registry: reg,
		secrets:  sec,
		targets:  targets,
		logger:   logger.With("component", "runner"),
		workDir:  workDir,
	}
}

// Execute runs a queued run to completion. The run record is updated after
// every step so progress is visible while the run is in flight.
func (r *Runner) Execute(ctx context.Context, run *domain.Run) error {
	logger := r.logger.With("run_id", run.ID, "app_id", run.AppID)
	logger.Info("starting run", "commit_sha", run.CommitSHA)

	if err := run.Transition(domain.RunStatusRunning); err != nil {
		return err
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	app, err := r.store.GetApp(ctx, run.AppID)
	if err != nil {
		return r.failRun(ctx, run, fmt.Sprintf("failed to load app: %v", err))
	}

	resolved, spec, err := r.prepare(app, run)
	if err != nil {
		return r.failRun(ctx, run, err.Error())
	}

	for i, step := range resolved.Steps {
		run.StartStep(i)
		if err := r.store.UpdateRun(ctx, run); err != nil {
			return err
		}

		logger.Info("executing step", "step", step.Name, "action", step.Action)

		detail, err := r.executeStep(ctx, app, run, spec, step)
		if err != nil {
			run.FailStep(i, err.Error())
			logger.Error("step failed", "step", step.Name, "error", err)
			return r.failRun(ctx, run, fmt.Sprintf("step %q failed: %v", step.Name, err))
		}

		run.FinishStep(i, detail)
		if err := r.store.UpdateRun(ctx, run); err != nil {
			return err
		}
		logger.Info("step finished", "step", step.Name)
	}

	if err := run.Transition(domain.RunStatusSucceeded); err != nil {
		return err
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	logger.Info("run succeeded", "image", run.ImageRef)
	return nil
}

// prepare parses the app's artifacts and resolves pipeline substitutions.
func (r *Runner) prepare(app *domain.App, run *domain.Run) (*pipeline.Pipeline, *imagespec.ImageSpec, error) {
	if app.Pipeline == "" {
		return nil, nil, ErrNoPipeline
	}
	if app.ImageSpec == "" {
		return nil, nil, ErrNoImageSpec
	}

	p, err := pipeline.ParsePipeline(app.Pipeline)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	spec, err := imagespec.ParseImageSpec(app.ImageSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid image definition: %w", err)
	}

	builtins := pipeline.BuiltinValues(
		app.ProjectID,
		app.Slug,
		run.CommitSHA,
		domain.ShortSHA(run.CommitSHA),
		run.ImageRef,
	)

	resolved, err := pipeline.Resolve(p, builtins)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve substitutions: %w", err)
	}

	return resolved, spec, nil
}

// executeStep dispatches one step by action.
func (r *Runner) executeStep(ctx context.Context, app *domain.App, run *domain.Run, spec *imagespec.ImageSpec, step pipeline.Step) (string, error) {
	switch step.Action {
	case pipeline.ActionBuild:
		return r.buildStep(ctx, app, run, spec, step)
	case pipeline.ActionPush:
		return r.pushStep(ctx, run)
	case pipeline.ActionDeploy:
		return r.deployStep(ctx, app, run, spec, step)
	default:
		return "", fmt.Errorf("unknown action %q", step.Action)
	}
}

// buildStep renders the Dockerfile and builds the image tagged with the
// run's image reference.
func (r *Runner) buildStep(ctx context.Context, app *domain.App, run *domain.Run, spec *imagespec.ImageSpec, step pipeline.Step) (string, error) {
	dockerfile := imagespec.RenderDockerfile(spec)

	contextDir := r.contextDir(app, step.Context)

	imageID, err := r.docker.BuildImage(ctx, docker.BuildParams{
		Tags:       []string{run.ImageRef},
		Dockerfile: dockerfile,
		ContextDir: contextDir,
		Labels: map[string]string{
			"com.shipyard.app":    app.ID,
			"com.shipyard.commit": run.CommitSHA,
		},
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("built %s (%s)", run.ImageRef, shortImageID(imageID)), nil
}

// pushStep pushes the built image using registry credentials.
func (r *Runner) pushStep(ctx context.Context, run *domain.Run) (string, error) {
	auth, err := r.registry.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get registry credentials: %w", err)
	}

	if err := r.docker.PushImage(ctx, run.ImageRef, auth); err != nil {
		return "", err
	}

	return fmt.Sprintf("pushed %s", run.ImageRef), nil
}

// deployStep resolves secrets, hands the image to the platform, and records
// a release.
func (r *Runner) deployStep(ctx context.Context, app *domain.App, run *domain.Run, spec *imagespec.ImageSpec, step pipeline.Step) (string, error) {
	target, err := platform.Resolve(r.targets, step.Target)
	if err != nil {
		return "", err
	}

	secretValues := make(map[string]string, len(step.Secrets))
	for envKey, secretName := range step.Secrets {
		value, err := r.secrets.Resolve(ctx, secretName)
		if err != nil {
			return "", fmt.Errorf("failed to resolve secret %q: %w", secretName, err)
		}
		secretValues[envKey] = value
	}

	result, err := target.Deploy(ctx, platform.DeployRequest{
		AppSlug:   app.Slug,
		ImageRef:  run.ImageRef,
		CommitSHA: run.CommitSHA,
		Region:    step.Region,
		Port:      spec.Port,
		Env:       step.Env,
		Secrets:   secretValues,
	})
	if err != nil {
		// Platform errors can echo request payloads; never persist plaintext
		return "", errors.New(redactValues(err.Error(), secretValues))
	}

	release := domain.NewRelease(run, step.Target)
	if err := r.store.CreateRelease(ctx, release); err != nil {
		return "", fmt.Errorf("deployed but failed to record release: %w", err)
	}

	detail := fmt.Sprintf("deployed %s to %s (release %s)", run.ImageRef, step.Target, release.ID)
	if result.URL != "" {
		detail += " at " + result.URL
	}
	return detail, nil
}

// failRun marks the run failed, skipping the steps that never ran.
func (r *Runner) failRun(ctx context.Context, run *domain.Run, message string) error {
	if err := run.Fail(message); err != nil {
		return err
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	return fmt.Errorf("run %s failed: %s", run.ID, message)
}

// contextDir picks the build context directory: the step's context relative
// to the app workspace, or the workspace itself, or none.
func (r *Runner) contextDir(app *domain.App, stepContext string) string {
	if r.workDir == "" {
		return ""
	}

	dir := filepath.Join(r.workDir, app.Slug)
	if stepContext != "" && stepContext != "." {
		dir = filepath.Join(dir, stepContext)
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}

// redactValues replaces each secret value in text with the redaction marker.
func redactValues(text string, values map[string]string) string {
	for _, value := range values {
		if value == "" {
			continue
		}
		text = strings.ReplaceAll(text, value, domain.RedactedValue)
	}
	return text
}

func shortImageID(id string) string {
	const prefix = "sha256:"
	trimmed := id
	if len(trimmed) > len(prefix) && trimmed[:len(prefix)] == prefix {
		trimmed = trimmed[len(prefix):]
	}
	if len(trimmed) > 12 {
		trimmed = trimmed[:12]
	}
	return trimmed
}
