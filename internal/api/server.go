// Package api exposes the local HTTP surface the frontend talks to.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"podcastle/pkg/version"
)

// NewServer creates and configures the HTTP server. shutdown triggers a
// graceful stop of the whole process.
func NewServer(addr string, podcasts *PodcastHandler, player *PlayerHandler, session *SessionHandler, stats *StatsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// Generation jobs
	mux.HandleFunc("POST /api/podcasts", podcasts.HandleCreate)
	mux.HandleFunc("GET /api/podcasts", podcasts.HandleList)
	mux.HandleFunc("GET /api/podcasts/{id}", podcasts.HandleGet)
	mux.HandleFunc("DELETE /api/podcasts/{id}", podcasts.HandleDelete)
	mux.HandleFunc("GET /api/categories", podcasts.HandleCategories)

	// Playback session
	mux.HandleFunc("POST /api/player/play", player.HandlePlay)
	mux.HandleFunc("POST /api/player/toggle", player.HandleToggle)
	mux.HandleFunc("POST /api/player/seek", player.HandleSeek)
	mux.HandleFunc("POST /api/player/volume", player.HandleVolume)
	mux.HandleFunc("GET /api/player/status", player.HandleStatus)

	// Auth session
	mux.HandleFunc("POST /api/session", session.HandleLogin)
	mux.HandleFunc("DELETE /api/session", session.HandleLogout)
	mux.HandleFunc("GET /api/session", session.HandleStatus)

	mux.Handle("GET /api/stats", stats)

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Run shutdown in a goroutine to allow the response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
