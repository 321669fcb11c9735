package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"podcastle/pkg/auth"
)

// SessionHandler owns the auth session lifecycle over HTTP: login stores
// a credential, logout tears it down.
type SessionHandler struct {
	resolver *auth.Resolver
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(r *auth.Resolver) *SessionHandler {
	return &SessionHandler{resolver: r}
}

// LoginRequest carries the bearer token for the backend.
type LoginRequest struct {
	Token string `json:"token"`
}

// SessionStatusResponse describes the current credential without ever
// exposing the token itself.
type SessionStatusResponse struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// HandleLogin handles POST /api/session.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	h.resolver.SetToken(r.Context(), req.Token)
	h.writeStatus(w)
}

// HandleLogout handles DELETE /api/session.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.resolver.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /api/session.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

func (h *SessionHandler) writeStatus(w http.ResponseWriter) {
	cred := h.resolver.Current()
	resp := SessionStatusResponse{Authenticated: cred.Valid()}
	if !cred.ExpiresAt.IsZero() {
		t := cred.ExpiresAt
		resp.ExpiresAt = &t
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode session status", "error", err)
	}
}
