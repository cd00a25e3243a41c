package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPTarget posts a deploy request to a webhook endpoint. Any platform with
// an HTTP trigger can sit behind it.
type HTTPTarget struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPTarget creates an HTTP deploy target.
func NewHTTPTarget(endpoint, token string, logger *slog.Logger) *HTTPTarget {
	return &HTTPTarget{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger.With("target", "http"),
	}
}

func (t *HTTPTarget) Name() string {
	return "http"
}

// deployPayload is the wire format POSTed to the endpoint.
type deployPayload struct {
	App       string            `json:"app"`
	Image     string            `json:"image"`
	CommitSHA string            `json:"commit_sha"`
	Region    string            `json:"region,omitempty"`
	Port      int               `json:"port,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
}

// deployResponse is the optional body a target may answer with.
type deployResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (t *HTTPTarget) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	payload := deployPayload{
		App:       req.AppSlug,
		Image:     req.ImageRef,
		CommitSHA: req.CommitSHA,
		Region:    req.Region,
		Port:      req.Port,
		Env:       req.Env,
		Secrets:   req.Secrets,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", ErrDeployFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	t.logger.Info("posting deploy", "app", req.AppSlug, "image", req.ImageRef)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: endpoint returned %d: %s", ErrDeployFailed, resp.StatusCode, truncate(string(respBody), 200))
	}

	result := &DeployResult{PlatformID: req.AppSlug}
	var parsed deployResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		if parsed.ID != "" {
			result.PlatformID = parsed.ID
		}
		result.URL = parsed.URL
	}

	t.logger.Info("deploy accepted", "app", req.AppSlug, "platform_id", result.PlatformID)
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
