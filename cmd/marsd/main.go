package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/marsdata/api"
	"github.com/use-agent/marsdata/cache"
	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/pipeline"
	"github.com/use-agent/marsdata/render"
	"github.com/use-agent/marsdata/runner"
	"github.com/use-agent/marsdata/scraper"
	"github.com/use-agent/marsdata/store"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("marsd starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"fetchMode", cfg.Fetch.Mode,
		"hemispheres", cfg.Pipeline.HemispheresEnabled,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── 3. Open the record store ────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store.DSN)
	if err != nil {
		slog.Error("failed to open store", "dsn", cfg.Store.DSN, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── 4. Build the pipeline (compiles every selector) ────────────
	pl, err := pipeline.NewMars(cfg.Pipeline)
	if err != nil {
		slog.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}

	// ── 5. Session source (launches the browser in browser mode) ──
	acq, err := scraper.NewAcquirer(cfg)
	if err != nil {
		slog.Error("failed to initialise rendering sessions", "error", err)
		os.Exit(1)
	}
	defer acq.Close()

	// ── 6. Runner, views and router ─────────────────────────────────
	cc := cache.New(cfg.Cache.TTL)
	defer cc.Close()

	rn := runner.New(pl, acq, st,
		runner.WithCache(cc),
		runner.WithWebhook(cfg.Webhook),
		runner.WithTimeout(cfg.Pipeline.RunTimeout),
	)

	rd, err := render.New()
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(ctx, cfg, rn, st, rd, cc, time.Now())

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("marsd stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
