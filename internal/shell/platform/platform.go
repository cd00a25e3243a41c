// Package platform delivers built images to serverless container platforms.
// A deploy hands the platform an image reference plus environment and secret
// values; the platform owns rollout and routing from there.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrUnknownTarget  = errors.New("unknown deploy target")
	ErrDeployFailed   = errors.New("deploy failed")
	ErrMissingConfig  = errors.New("deploy target is not configured")
	ErrRegionRequired = errors.New("deploy region is required")
)

// DeployRequest carries everything a platform needs to run one revision.
type DeployRequest struct {
	AppSlug   string
	ImageRef  string
	CommitSHA string
	Region    string
	Port      int
	Env       map[string]string
	Secrets   map[string]string // env var name -> resolved value
}

// DeployResult identifies the deployed revision on the platform.
type DeployResult struct {
	PlatformID string
	URL        string
}

// Target deploys images to one platform.
type Target interface {
	Name() string
	Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error)
}

// Config selects and configures deploy targets.
type Config struct {
	HTTPEndpoint string // generic webhook target
	HTTPToken    string
	DOToken      string // DigitalOcean API token
}

// Targets builds all configured targets, keyed by name.
func Targets(cfg Config, logger *slog.Logger) map[string]Target {
	if logger == nil {
		logger = slog.Default()
	}

	targets := make(map[string]Target)
	if cfg.HTTPEndpoint != "" {
		targets["http"] = NewHTTPTarget(cfg.HTTPEndpoint, cfg.HTTPToken, logger)
	}
	if cfg.DOToken != "" {
		targets["digitalocean"] = NewDigitalOceanTarget(cfg.DOToken, logger)
	}
	return targets
}

// Resolve returns the named target or an error naming what is missing.
func Resolve(targets map[string]Target, name string) (Target, error) {
	t, ok := targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingConfig, name)
	}
	return t, nil
}

// =============================================================================
// Image Reference Parsing
// =============================================================================

// imageParts splits an image reference into registry host, repository, and
// tag, e.g. "registry.example.com/acme/app:abc1234".
func imageParts(imageRef string) (registryHost, repository, tag string) {
	rest := imageRef
	if idx := strings.LastIndex(rest, ":"); idx != -1 && !strings.Contains(rest[idx:], "/") {
		tag = rest[idx+1:]
		rest = rest[:idx]
	}

	if idx := strings.Index(rest, "/"); idx != -1 && strings.ContainsAny(rest[:idx], ".:") {
		registryHost = rest[:idx]
		repository = rest[idx+1:]
	} else {
		repository = rest
	}

	return registryHost, repository, tag
}
