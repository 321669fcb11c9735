package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"podcastle/pkg/library"
	"podcastle/pkg/registry"
	"podcastle/pkg/tracker"
)

// StatsHandler reports upstream usage counters and tracking state.
type StatsHandler struct {
	tracker *tracker.Tracker
	reg     *registry.Registry
	lib     *library.Library
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(t *tracker.Tracker, reg *registry.Registry, lib *library.Library) *StatsHandler {
	return &StatsHandler{tracker: t, reg: reg, lib: lib}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIFailures int64 `json:"api_errors"`
	HitRate     int64 `json:"hit_rate"`
}

type TrackingStats struct {
	Polling   int `json:"polling"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type StatsResponse struct {
	Tracking  TrackingStats               `json:"tracking"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := h.lib.Snapshot()
	resp := StatsResponse{
		Tracking: TrackingStats{
			Polling:   h.reg.Count(),
			Active:    len(view.Active),
			Completed: len(view.Completed),
			Failed:    len(view.Failed),
		},
		Providers: make(map[string]ProviderStatsDTO),
	}

	for provider, stats := range h.tracker.Snapshot() {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			APISuccess:  stats.APISuccess,
			APIFailures: stats.APIFailures,
			HitRate:     hitRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode stats", "error", err)
	}
}
