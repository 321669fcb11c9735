package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"podcastle/internal/api"
	"podcastle/pkg/auth"
	"podcastle/pkg/backend"
	"podcastle/pkg/config"
	"podcastle/pkg/db"
	"podcastle/pkg/library"
	"podcastle/pkg/logging"
	"podcastle/pkg/playback"
	"podcastle/pkg/playback/beepsource"
	"podcastle/pkg/poller"
	"podcastle/pkg/probe"
	"podcastle/pkg/registry"
	"podcastle/pkg/request"
	"podcastle/pkg/store"
	"podcastle/pkg/tracker"
	"podcastle/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault("configs/podcastle.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: configs/podcastle.yaml")
		return
	}

	// .env is optional, used for PODCASTLE_TOKEN and friends in dev
	_ = godotenv.Load()

	if err := run(context.Background(), "configs/podcastle.yaml"); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Podcastle started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	if err := dbConn.PruneCache(7 * 24 * time.Hour); err != nil {
		slog.Warn("Cache prune failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(&cfg.Request, st, tr)

	// Auth: one canonical credential, restored from the stored session or
	// seeded from config/env.
	resolver := auth.NewResolver(st)
	resolver.Restore(ctx)
	if cfg.Auth.Token != "" && !resolver.Current().Valid() {
		resolver.SetToken(ctx, cfg.Auth.Token)
	}

	backendClient := backend.New(reqClient, cfg.Backend.BaseURL, resolver)

	// Job tracking: registry + library, both restored from the last run.
	reg := registry.New(st)
	reg.Restore(ctx)
	lib := library.New(reg, st, time.Duration(cfg.Poller.MarkerTTL))
	lib.Restore(ctx)

	p := poller.New(reg, backendClient, lib,
		poller.NewTickerSource(time.Duration(cfg.Poller.Interval)),
		func() { slog.Warn("Polling halted: re-authentication required") },
	)
	resolver.Subscribe(func(cred auth.Credential) {
		if cred.Valid() {
			p.Resume()
		}
	})
	go p.Run(ctx)

	// Playback session
	sourceFactory, err := beepsource.NewFactory(reqClient, resolver, cfg.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize playback source: %w", err)
	}
	player := playback.New(sourceFactory.Source, restoreVolume(ctx, st, cfg.Playback.Volume))
	defer player.Detach()

	results := probe.Run(ctx, []probe.Probe{
		{Name: "database", Check: dbConn.PingContext, Critical: true},
		{Name: "backend", Check: backendClient.Ping},
	})
	if err := probe.Evaluate(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, cfg, backendClient, lib, reg, player, resolver, tr, st)
}

// restoreVolume prefers the volume from the previous session over the
// configured default.
func restoreVolume(ctx context.Context, st store.Store, fallback int) int {
	if val, ok := st.GetState(ctx, "playback.volume"); ok {
		if vol, err := strconv.Atoi(val); err == nil {
			return vol
		}
	}
	return fallback
}

func runServer(ctx context.Context, cfg *config.Config, bc *backend.Client, lib *library.Library, reg *registry.Registry, player *playback.Manager, resolver *auth.Resolver, tr *tracker.Tracker, st store.Store) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewPodcastHandler(bc, lib, reg),
		api.NewPlayerHandler(player, lib, st),
		api.NewSessionHandler(resolver),
		api.NewStatsHandler(tr, reg, lib),
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)

	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
