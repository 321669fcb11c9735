package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"podcastle/pkg/library"
	"podcastle/pkg/model"
	"podcastle/pkg/playback"
	"podcastle/pkg/store"
)

// PlayerHandler exposes the playback session to the frontend. All
// transport commands flow through here; no other component talks to the
// media source directly.
type PlayerHandler struct {
	player *playback.Manager
	lib    *library.Library
	store  store.StateStore
}

// NewPlayerHandler creates a new PlayerHandler. st may be nil.
func NewPlayerHandler(p *playback.Manager, lib *library.Library, st store.StateStore) *PlayerHandler {
	return &PlayerHandler{player: p, lib: lib, store: st}
}

// PlayRequest names the podcast to play.
type PlayRequest struct {
	ID string `json:"id"`
}

// SeekRequest is a playhead move, in seconds.
type SeekRequest struct {
	Position float64 `json:"position"`
}

// VolumeRequest is a volume change, in percent.
type VolumeRequest struct {
	Volume int `json:"volume"`
}

// HandlePlay handles POST /api/player/play. Playing the track that is
// already attached toggles play/pause instead of reloading it.
func (h *PlayerHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job := h.lib.Get(req.ID)
	if job == nil {
		http.Error(w, "unknown podcast", http.StatusNotFound)
		return
	}
	if job.State != model.StateCompleted {
		http.Error(w, "podcast has no playable audio yet", http.StatusConflict)
		return
	}

	if err := h.player.PlayTrack(r.Context(), job.TrackOf()); err != nil {
		// A rejection is user-visible but not an HTTP failure; the
		// session state carries the details.
		if !errors.Is(err, playback.ErrPlaybackRejected) {
			slog.Error("Unexpected playback failure", "id", req.ID, "error", err)
		}
		h.writeStatus(w)
		return
	}

	h.writeStatus(w)
}

// HandleToggle handles POST /api/player/toggle.
func (h *PlayerHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	h.player.TogglePlayPause()
	h.writeStatus(w)
}

// HandleSeek handles POST /api/player/seek.
func (h *PlayerHandler) HandleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.player.Seek(req.Position)
	h.writeStatus(w)
}

// HandleVolume handles POST /api/player/volume. The applied volume is
// persisted so the next session starts where this one left off.
func (h *PlayerHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.player.SetVolume(req.Volume)

	if h.store != nil {
		val := fmt.Sprintf("%d", h.player.Volume())
		if err := h.store.SetState(r.Context(), "playback.volume", val); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}

	h.writeStatus(w)
}

// HandleStatus handles GET /api/player/status.
func (h *PlayerHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

func (h *PlayerHandler) writeStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.player.Snapshot()); err != nil {
		slog.Error("Failed to encode player status", "error", err)
	}
}
