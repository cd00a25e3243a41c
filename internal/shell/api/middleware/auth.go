// Package middleware provides HTTP middleware for the Shipyard API.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/samaanhq/shipyard/internal/core/domain"
)

// =============================================================================
// Token Lister Interface
// =============================================================================

// TokenLister returns the API tokens that can still authenticate. The store
// implements this interface.
type TokenLister interface {
	ListActiveAPITokens(ctx context.Context) ([]domain.APIToken, error)
}

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Tokens supplies the active token set checked on each request.
	Tokens TokenLister

	// AllowBootstrap lets requests through while no tokens exist yet, so
	// the first token can be minted over the API itself.
	AllowBootstrap bool

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware authenticates requests by a bearer token checked against
// the stored bcrypt hashes.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens, err := m.config.Tokens.ListActiveAPITokens(r.Context())
		if err != nil {
			m.config.Logger.Error("failed to load API tokens", "error", err)
			writeAuthError(w, http.StatusInternalServerError, "failed to verify credentials")
			return
		}

		if len(tokens) == 0 && m.config.AllowBootstrap {
			next.ServeHTTP(w, r)
			return
		}

		plaintext, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if !matchToken(tokens, plaintext) {
			m.config.Logger.Warn("rejected API token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return "", false
	}
	return value, true
}

// matchToken compares the plaintext against every active token hash.
func matchToken(tokens []domain.APIToken, plaintext string) bool {
	for _, t := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(plaintext)) == nil {
			return true
		}
	}
	return false
}

// =============================================================================
// JSON Error Response
// =============================================================================

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	code := "unauthorized"
	if status >= http.StatusInternalServerError {
		code = "internal_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authError{
		Error: message,
		Code:  code,
	})
}
