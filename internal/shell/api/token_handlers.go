package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/samaanhq/shipyard/internal/core/domain"
)

// =============================================================================
// Token Handlers
// =============================================================================

// handleCreateToken mints an API token. The plaintext appears once, in the
// creation response; only the bcrypt hash is stored.
func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	plaintext := domain.GenerateTokenPlaintext()
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create token", "internal_error")
		return
	}

	token, err := domain.NewAPIToken(req.Name, string(hash))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateAPIToken(r.Context(), token); err != nil {
		h.logger.Error("failed to create token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create token", "internal_error")
		return
	}

	h.logger.Info("API token created", "token_id", token.ID, "name", token.Name)

	resp := tokenToResponse(token)
	resp.Token = plaintext
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.ListActiveAPITokens(r.Context())
	if err != nil {
		h.logger.Error("failed to list tokens", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list tokens", "internal_error")
		return
	}

	resp := ListTokensResponse{
		Tokens: make([]TokenResponse, 0, len(tokens)),
		Total:  len(tokens),
	}
	for i := range tokens {
		resp.Tokens = append(resp.Tokens, tokenToResponse(&tokens[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.RevokeAPIToken(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "token not found", "token_not_found")
			return
		}
		h.logger.Error("failed to revoke token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to revoke token", "internal_error")
		return
	}

	h.logger.Info("API token revoked", "token_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func tokenToResponse(t *domain.APIToken) TokenResponse {
	return TokenResponse{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
		RevokedAt: t.RevokedAt,
	}
}
