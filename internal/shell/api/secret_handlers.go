package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samaanhq/shipyard/internal/core/domain"
	"github.com/samaanhq/shipyard/internal/shell/secrets"
)

// =============================================================================
// Secret Handlers
// =============================================================================

// handleCreateSecret creates a secret or rotates the value of an existing
// one. The value goes straight into the backend and is never echoed back.
func (h *Handler) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req CreateSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if req.Backend == "" {
		req.Backend = "local"
	}

	secret, err := h.secrets.Set(r.Context(), req.Name, req.Backend, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, secrets.ErrValueRequired),
			errors.Is(err, domain.ErrSecretNameRequired),
			errors.Is(err, domain.ErrSecretNameInvalidFormat):
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		case errors.Is(err, secrets.ErrUnknownBackend):
			h.writeError(w, http.StatusBadRequest, err.Error(), "unknown_backend")
		default:
			h.logger.Error("failed to set secret", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to set secret", "internal_error")
		}
		return
	}

	status := http.StatusCreated
	if secret.Version > 1 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, secretToResponse(secret))
}

func (h *Handler) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	secretList, err := h.secrets.List(r.Context(), listOptions(r))
	if err != nil {
		h.logger.Error("failed to list secrets", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list secrets", "internal_error")
		return
	}

	resp := ListSecretsResponse{
		Secrets: make([]SecretResponse, 0, len(secretList)),
		Total:   len(secretList),
	}
	for i := range secretList {
		resp.Secrets = append(resp.Secrets, secretToResponse(&secretList[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.secrets.Delete(r.Context(), name); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "secret not found", "secret_not_found")
			return
		}
		h.logger.Error("failed to delete secret", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete secret", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func secretToResponse(s *domain.Secret) SecretResponse {
	return SecretResponse{
		Name:      s.Name,
		Backend:   s.Backend,
		Version:   s.Version,
		Value:     domain.RedactedValue,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
