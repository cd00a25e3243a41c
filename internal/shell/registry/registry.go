// Package registry resolves credentials for pushing images to container
// registries. Static credentials cover self-hosted and hub registries; ECR
// tokens are fetched on demand and cached until they expire.
package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"github.com/samaanhq/shipyard/internal/shell/docker"
)

var (
	ErrNoCredentials    = errors.New("no registry credentials configured")
	ErrTokenMalformed   = errors.New("authorization token is malformed")
	ErrUnknownProvider  = errors.New("unknown registry provider type")
	ErrTokenUnavailable = errors.New("failed to obtain authorization token")
)

// Provider supplies registry credentials for image push and pull.
type Provider interface {
	Credentials(ctx context.Context) (docker.RegistryAuth, error)
}

// Config selects and configures a credential provider.
type Config struct {
	Type     string // "none", "static", or "ecr"
	Server   string
	Username string
	Password string
	Region   string // ECR only
}

// New builds a Provider from config.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Type {
	case "", "none":
		return &NoneProvider{}, nil
	case "static":
		if cfg.Username == "" || cfg.Password == "" {
			return nil, ErrNoCredentials
		}
		return &StaticProvider{
			Username: cfg.Username,
			Password: cfg.Password,
			Server:   cfg.Server,
		}, nil
	case "ecr":
		return NewECRProvider(ctx, cfg.Region)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Type)
	}
}

// =============================================================================
// None Provider
// =============================================================================

// NoneProvider returns empty credentials, for registries that allow
// anonymous pushes or local-only runs.
type NoneProvider struct{}

func (p *NoneProvider) Credentials(ctx context.Context) (docker.RegistryAuth, error) {
	return docker.RegistryAuth{}, nil
}

// =============================================================================
// Static Provider
// =============================================================================

// StaticProvider returns fixed credentials from configuration.
type StaticProvider struct {
	Username string
	Password string
	Server   string
}

func (p *StaticProvider) Credentials(ctx context.Context) (docker.RegistryAuth, error) {
	return docker.RegistryAuth{
		Username:      p.Username,
		Password:      p.Password,
		ServerAddress: p.Server,
	}, nil
}

// =============================================================================
// ECR Provider
// =============================================================================

// ecrAPI is the slice of the ECR client the provider uses.
type ecrAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// ECRProvider fetches short-lived tokens from ECR and caches them until
// shortly before expiry.
type ECRProvider struct {
	client ecrAPI

	mu      sync.Mutex
	cached  docker.RegistryAuth
	expires time.Time
}

// NewECRProvider creates an ECR provider using the default AWS credential
// chain.
func NewECRProvider(ctx context.Context, region string) (*ECRProvider, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &ECRProvider{client: ecr.NewFromConfig(cfg)}, nil
}

func (p *ECRProvider) Credentials(ctx context.Context) (docker.RegistryAuth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Tokens last 12 hours; refresh a few minutes early
	if time.Now().Before(p.expires.Add(-5 * time.Minute)) {
		return p.cached, nil
	}

	output, err := p.client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return docker.RegistryAuth{}, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if len(output.AuthorizationData) == 0 {
		return docker.RegistryAuth{}, ErrTokenUnavailable
	}

	data := output.AuthorizationData[0]

	token := ""
	if data.AuthorizationToken != nil {
		token = *data.AuthorizationToken
	}
	username, password, err := decodeAuthorizationToken(token)
	if err != nil {
		return docker.RegistryAuth{}, err
	}

	server := ""
	if data.ProxyEndpoint != nil {
		server = strings.TrimPrefix(*data.ProxyEndpoint, "https://")
	}

	p.cached = docker.RegistryAuth{
		Username:      username,
		Password:      password,
		ServerAddress: server,
	}
	if data.ExpiresAt != nil {
		p.expires = *data.ExpiresAt
	} else {
		p.expires = time.Now().Add(1 * time.Hour)
	}

	return p.cached, nil
}

// decodeAuthorizationToken splits the base64 "user:password" token ECR
// returns.
func decodeAuthorizationToken(token string) (string, string, error) {
	if token == "" {
		return "", "", ErrTokenMalformed
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found || username == "" {
		return "", "", ErrTokenMalformed
	}

	return username, password, nil
}
