package api

import (
	"net/http"

	"github.com/samaanhq/shipyard/internal/shell/api/openapi"
)

// newSpecGenerator registers every API resource with the OpenAPI generator.
// Schemas come from the handler's own request and response types.
func newSpecGenerator() *openapi.Generator {
	g := openapi.NewGenerator()

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "apps",
		Model:          AppResponse{},
		CreateModel:    CreateAppRequest{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsUpdate: true,
		SupportsDelete: true,
		Actions: []openapi.ActionInfo{
			{
				Method:   http.MethodPost,
				Path:     "/lint",
				Summary:  "Cross-check the app's configuration artifacts",
				Response: LintResponse{},
			},
			{
				Method:   http.MethodPost,
				Path:     "/runs",
				Summary:  "Queue a pipeline run for a commit",
				Request:  CreateRunRequest{},
				Response: RunResponse{},
			},
			{
				Method:   http.MethodGet,
				Path:     "/runs",
				Summary:  "List the app's pipeline runs",
				Response: ListRunsResponse{},
			},
			{
				Method:   http.MethodGet,
				Path:     "/releases",
				Summary:  "List the app's releases",
				Response: ListReleasesResponse{},
			},
			{
				Method:   http.MethodGet,
				Path:     "/stack",
				Summary:  "Get the app's stack state",
				Response: StackResponse{},
			},
			{
				Method:   http.MethodPost,
				Path:     "/stack/up",
				Summary:  "Start the app's compose stack",
				Request:  StackUpRequest{},
				Response: StackResponse{},
			},
			{
				Method:   http.MethodPost,
				Path:     "/stack/down",
				Summary:  "Stop the app's compose stack",
				Request:  StackDownRequest{},
				Response: StackResponse{},
			},
		},
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:         "runs",
		Model:        RunResponse{},
		SupportsFind: true,
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "secrets",
		Model:          SecretResponse{},
		CreateModel:    CreateSecretRequest{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsDelete: true,
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "tokens",
		Model:          TokenResponse{},
		CreateModel:    CreateTokenRequest{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsDelete: true,
	})

	return g
}
