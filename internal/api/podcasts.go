package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"podcastle/pkg/backend"
	"podcastle/pkg/library"
	"podcastle/pkg/model"
	"podcastle/pkg/registry"
)

// Backend is the slice of the generation backend the podcast endpoints
// use.
type Backend interface {
	Create(ctx context.Context, req *model.CreateRequest) (*model.Job, error)
	Delete(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]model.Category, error)
}

// PodcastHandler handles job creation, listing, and deletion.
type PodcastHandler struct {
	backend Backend
	lib     *library.Library
	reg     *registry.Registry
}

// NewPodcastHandler creates a new PodcastHandler.
func NewPodcastHandler(b Backend, lib *library.Library, reg *registry.Registry) *PodcastHandler {
	return &PodcastHandler{backend: b, lib: lib, reg: reg}
}

// CreatePodcastRequest is the creation payload from the frontend.
type CreatePodcastRequest struct {
	Topic       string `json:"topic"`
	CategoryID  string `json:"category_id"`
	Duration    int    `json:"duration"`
	SpeakerMode string `json:"speaker_mode"`
}

// HandleCreate handles POST /api/podcasts.
func (h *PodcastHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePodcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}

	job, err := h.backend.Create(r.Context(), &model.CreateRequest{
		Topic:       req.Topic,
		CategoryID:  req.CategoryID,
		Duration:    req.Duration,
		SpeakerMode: model.SpeakerMode(req.SpeakerMode),
	})
	if err != nil {
		writeBackendError(w, "create podcast", err)
		return
	}

	h.lib.Add(r.Context(), job)
	h.reg.Register(r.Context(), job.ID, job.State)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(job); err != nil {
		slog.Error("Failed to encode podcast response", "error", err)
	}
}

// HandleList handles GET /api/podcasts. With view=by_category the
// completed partition is grouped by category instead.
func (h *PodcastHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Query().Get("view") == "by_category" {
		if err := json.NewEncoder(w).Encode(h.lib.CompletedByCategory()); err != nil {
			slog.Error("Failed to encode podcast list", "error", err)
		}
		return
	}

	if err := json.NewEncoder(w).Encode(h.lib.Snapshot()); err != nil {
		slog.Error("Failed to encode podcast list", "error", err)
	}
}

// HandleGet handles GET /api/podcasts/{id}.
func (h *PodcastHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job := h.lib.Get(id)
	if job == nil {
		http.Error(w, "unknown podcast", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"job":            job,
		"just_completed": h.lib.JustCompleted(id),
	}); err != nil {
		slog.Error("Failed to encode podcast", "error", err)
	}
}

// HandleDelete handles DELETE /api/podcasts/{id}. Deletion is
// optimistic: the job leaves the list and the poll set immediately and
// is reinstated only if the backend definitively rejects the request.
func (h *PodcastHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed := h.lib.Remove(r.Context(), id)
	if removed == nil {
		http.Error(w, "unknown podcast", http.StatusNotFound)
		return
	}

	if err := h.backend.Delete(r.Context(), id); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			h.lib.Reinstate(r.Context(), removed)
			if removed.State.Active() {
				h.reg.Register(r.Context(), id, removed.State)
			}
			writeBackendError(w, "delete podcast", err)
			return
		}
		// Transient or already gone server-side: the optimistic removal
		// stands either way.
		slog.Debug("Delete request did not confirm", "id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCategories handles GET /api/categories.
func (h *PodcastHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.backend.Categories(r.Context())
	if err != nil {
		writeBackendError(w, "list categories", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cats); err != nil {
		slog.Error("Failed to encode categories", "error", err)
	}
}

// writeBackendError maps the backend error taxonomy onto HTTP statuses.
func writeBackendError(w http.ResponseWriter, op string, err error) {
	slog.Warn("Backend request failed", "op", op, "error", err)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		http.Error(w, "authentication required", http.StatusUnauthorized)
	case errors.Is(err, backend.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}
}
