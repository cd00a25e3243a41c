package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digitalocean/godo"
)

// doAppsAPI is the slice of godo's Apps service the target uses.
type doAppsAPI interface {
	List(ctx context.Context, opts *godo.ListOptions) ([]*godo.App, *godo.Response, error)
	Create(ctx context.Context, create *godo.AppCreateRequest) (*godo.App, *godo.Response, error)
	Update(ctx context.Context, appID string, update *godo.AppUpdateRequest) (*godo.App, *godo.Response, error)
}

// DigitalOceanTarget deploys to DigitalOcean App Platform. Each shipyard app
// maps to one platform app; deploys update the service image tag in place.
type DigitalOceanTarget struct {
	apps   doAppsAPI
	logger *slog.Logger
}

// NewDigitalOceanTarget creates a DigitalOcean target.
func NewDigitalOceanTarget(apiToken string, logger *slog.Logger) *DigitalOceanTarget {
	client := godo.NewFromToken(apiToken)
	return &DigitalOceanTarget{
		apps:   client.Apps,
		logger: logger.With("target", "digitalocean"),
	}
}

func (t *DigitalOceanTarget) Name() string {
	return "digitalocean"
}

func (t *DigitalOceanTarget) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if req.Region == "" {
		return nil, ErrRegionRequired
	}

	spec := t.buildAppSpec(req)

	existing, err := t.findApp(ctx, req.AppSlug)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}

	var app *godo.App
	if existing != nil {
		t.logger.Info("updating platform app", "app", req.AppSlug, "platform_id", existing.ID)
		app, _, err = t.apps.Update(ctx, existing.ID, &godo.AppUpdateRequest{Spec: spec})
	} else {
		t.logger.Info("creating platform app", "app", req.AppSlug, "region", req.Region)
		app, _, err = t.apps.Create(ctx, &godo.AppCreateRequest{Spec: spec})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}

	t.logger.Info("deploy accepted", "app", req.AppSlug, "platform_id", app.ID)

	return &DeployResult{
		PlatformID: app.ID,
		URL:        app.LiveURL,
	}, nil
}

// findApp locates the platform app whose spec name matches the slug.
func (t *DigitalOceanTarget) findApp(ctx context.Context, slug string) (*godo.App, error) {
	opts := &godo.ListOptions{PerPage: 200}
	apps, _, err := t.apps.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	for _, app := range apps {
		if app.Spec != nil && app.Spec.Name == slug {
			return app, nil
		}
	}
	return nil, nil
}

// buildAppSpec maps the deploy request to a single-service app spec.
func (t *DigitalOceanTarget) buildAppSpec(req DeployRequest) *godo.AppSpec {
	registryHost, repository, tag := imageParts(req.ImageRef)

	image := &godo.ImageSourceSpec{
		Repository: repository,
		Tag:        tag,
	}
	if strings.HasSuffix(registryHost, "registry.digitalocean.com") {
		image.RegistryType = godo.ImageSourceSpecRegistryType_DOCR
		// DOCR repositories drop the leading registry name segment
		if idx := strings.Index(repository, "/"); idx != -1 {
			image.Repository = repository[idx+1:]
		}
	} else {
		image.RegistryType = godo.ImageSourceSpecRegistryType_DockerHub
		image.Registry = registryHost
	}

	var envs []*godo.AppVariableDefinition
	for k, v := range req.Env {
		envs = append(envs, &godo.AppVariableDefinition{
			Key:   k,
			Value: v,
			Type:  godo.AppVariableType_General,
		})
	}
	for k, v := range req.Secrets {
		envs = append(envs, &godo.AppVariableDefinition{
			Key:   k,
			Value: v,
			Type:  godo.AppVariableType_Secret,
		})
	}

	service := &godo.AppServiceSpec{
		Name:             req.AppSlug,
		Image:            image,
		InstanceCount:    1,
		InstanceSizeSlug: "basic-xxs",
		Envs:             envs,
	}
	if req.Port > 0 {
		service.HTTPPort = int64(req.Port)
	}

	return &godo.AppSpec{
		Name:     req.AppSlug,
		Region:   req.Region,
		Services: []*godo.AppServiceSpec{service},
	}
}
