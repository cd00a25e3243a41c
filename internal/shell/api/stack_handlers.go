package api

import (
	"encoding/json"
	"net/http"

	"github.com/samaanhq/shipyard/internal/core/compose"
	"github.com/samaanhq/shipyard/internal/core/domain"
)

// =============================================================================
// Stack Handlers
// =============================================================================

func (h *Handler) handleGetStack(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	stack, err := h.store.GetStack(r.Context(), app.ID)
	if err != nil {
		if isNotFound(err) {
			// No state saved yet means the stack has never been started.
			h.writeJSON(w, http.StatusOK, stackToResponse(domain.NewStack(app.ID)))
			return
		}
		h.logger.Error("failed to get stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get stack", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, stackToResponse(stack))
}

func (h *Handler) handleStackUp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	var req StackUpRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
			return
		}
	}

	if app.ComposeSpec == "" {
		h.writeError(w, http.StatusConflict, "app has no compose spec configured", "compose_missing")
		return
	}

	spec, err := compose.ParseStackSpec(app.ComposeSpec)
	if err != nil {
		h.writeError(w, http.StatusConflict, "stored compose spec is invalid: "+err.Error(), "compose_invalid")
		return
	}

	stack, err := h.loadOrCreateStack(r, app.ID)
	if err != nil {
		h.logger.Error("failed to load stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load stack", "internal_error")
		return
	}

	if err := stack.Transition(domain.StackStatusStarting); err != nil {
		h.writeError(w, http.StatusConflict, "stack is already "+string(stack.Status), "invalid_transition")
		return
	}
	if err := h.store.SaveStack(r.Context(), stack); err != nil {
		h.logger.Error("failed to save stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save stack", "internal_error")
		return
	}

	services, err := h.orchestrator.UpStack(r.Context(), app.ID, spec, req.Variables)
	if err != nil {
		h.logger.Error("stack start failed", "app_id", app.ID, "error", err)
		if ferr := stack.TransitionToFailed(err.Error()); ferr == nil {
			if serr := h.store.SaveStack(r.Context(), stack); serr != nil {
				h.logger.Error("failed to save stack", "error", serr)
			}
		}
		h.writeError(w, http.StatusInternalServerError, "failed to start stack: "+err.Error(), "stack_failed")
		return
	}

	if err := stack.Transition(domain.StackStatusUp); err != nil {
		h.logger.Error("invalid stack transition", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to start stack", "internal_error")
		return
	}
	stack.Services = services

	if err := h.store.SaveStack(r.Context(), stack); err != nil {
		h.logger.Error("failed to save stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save stack", "internal_error")
		return
	}

	h.logger.Info("stack started", "app_id", app.ID, "services", len(services))
	h.writeJSON(w, http.StatusOK, stackToResponse(stack))
}

func (h *Handler) handleStackDown(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadApp(w, r)
	if !ok {
		return
	}

	var req StackDownRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
			return
		}
	}

	if app.ComposeSpec == "" {
		h.writeError(w, http.StatusConflict, "app has no compose spec configured", "compose_missing")
		return
	}

	spec, err := compose.ParseStackSpec(app.ComposeSpec)
	if err != nil {
		h.writeError(w, http.StatusConflict, "stored compose spec is invalid: "+err.Error(), "compose_invalid")
		return
	}

	stack, err := h.loadOrCreateStack(r, app.ID)
	if err != nil {
		h.logger.Error("failed to load stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load stack", "internal_error")
		return
	}

	if err := stack.Transition(domain.StackStatusStopping); err != nil {
		h.writeError(w, http.StatusConflict, "stack is "+string(stack.Status), "invalid_transition")
		return
	}
	if err := h.store.SaveStack(r.Context(), stack); err != nil {
		h.logger.Error("failed to save stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save stack", "internal_error")
		return
	}

	if err := h.orchestrator.DownStack(r.Context(), app.ID, spec, req.RemoveVolumes); err != nil {
		h.logger.Error("stack stop failed", "app_id", app.ID, "error", err)
		if ferr := stack.TransitionToFailed(err.Error()); ferr == nil {
			if serr := h.store.SaveStack(r.Context(), stack); serr != nil {
				h.logger.Error("failed to save stack", "error", serr)
			}
		}
		h.writeError(w, http.StatusInternalServerError, "failed to stop stack: "+err.Error(), "stack_failed")
		return
	}

	if err := stack.Transition(domain.StackStatusDown); err != nil {
		h.logger.Error("invalid stack transition", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to stop stack", "internal_error")
		return
	}

	if err := h.store.SaveStack(r.Context(), stack); err != nil {
		h.logger.Error("failed to save stack", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save stack", "internal_error")
		return
	}

	h.logger.Info("stack stopped", "app_id", app.ID, "volumes_removed", req.RemoveVolumes)
	h.writeJSON(w, http.StatusOK, stackToResponse(stack))
}

// loadOrCreateStack fetches the saved stack state, creating the initial
// down-state record for apps that never started one.
func (h *Handler) loadOrCreateStack(r *http.Request, appID string) (*domain.Stack, error) {
	stack, err := h.store.GetStack(r.Context(), appID)
	if err != nil {
		if isNotFound(err) {
			return domain.NewStack(appID), nil
		}
		return nil, err
	}
	return stack, nil
}

func stackToResponse(s *domain.Stack) StackResponse {
	resp := StackResponse{
		AppID:        s.AppID,
		Status:       string(s.Status),
		Services:     make([]ServiceResponse, 0, len(s.Services)),
		ErrorMessage: s.ErrorMessage,
		StartedAt:    s.StartedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	for _, svc := range s.Services {
		resp.Services = append(resp.Services, ServiceResponse{
			ServiceName: svc.ServiceName,
			ContainerID: svc.ContainerID,
			Image:       svc.Image,
			State:       svc.State,
		})
	}
	return resp
}
