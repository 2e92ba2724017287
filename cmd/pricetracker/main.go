package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/egor6820/price-tracker-server/api"
	"github.com/egor6820/price-tracker-server/cache"
	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/engine"
	"github.com/egor6820/price-tracker-server/extractor"
	"github.com/egor6820/price-tracker-server/pipeline"
	"github.com/egor6820/price-tracker-server/scraper"
	"github.com/egor6820/price-tracker-server/trust"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("price tracker starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"rendering", cfg.Browser.Enabled,
		"maxParallel", cfg.Browser.MaxParallel,
		"fetchOrder", cfg.Fetch.Order,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Domain selectors ─────────────────────────────────────────
	selectors, err := config.LoadSelectors(cfg.Selectors.File)
	if err != nil {
		slog.Error("failed to load site selectors", "file", cfg.Selectors.File, "error", err)
		os.Exit(1)
	}
	slog.Info("site selectors loaded", "domains", selectors.Len())

	// ── 4. Renderer (launches browser) ──────────────────────────────
	var rodFetch engine.RodFetchFunc
	if cfg.Browser.Enabled {
		sc, err := scraper.NewScraper(cfg.Browser, cfg.Render)
		if err != nil {
			slog.Error("failed to initialise renderer", "error", err)
			os.Exit(1)
		}
		defer sc.Close()
		// The method value keeps engine/ free of a scraper/ import.
		rodFetch = sc.Render
	}

	// ── 5. Fetch strategies ─────────────────────────────────────────
	strategies, err := buildStrategies(cfg, rodFetch)
	if err != nil {
		slog.Error("invalid fetch order", "error", err)
		os.Exit(1)
	}
	var memory *engine.DomainMemory
	if cfg.Fetch.RememberStrategy {
		memory = engine.NewDomainMemory(cfg.Fetch.MemoryTTL)
		defer memory.Stop()
	}
	fetcher := engine.NewFetcher(strategies, cfg.Fetch.Backoff, memory)

	// ── 6. Last-known-good cache ────────────────────────────────────
	cacheOpts := []cache.Option{cache.WithMaxSnapshot(cfg.LastGood.MaxSnapshot)}
	if cfg.LastGood.DBPath != "" {
		store, err := cache.OpenSQLite(cfg.LastGood.DBPath)
		if err != nil {
			slog.Error("failed to open last-good store", "path", cfg.LastGood.DBPath, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		cacheOpts = append(cacheOpts, cache.WithStore(store))
	}
	lastGood := cache.New(cfg.LastGood.TTL, cacheOpts...)
	defer lastGood.Close()
	if n, err := lastGood.Restore(ctx); err != nil {
		slog.Warn("failed to restore last-good entries", "error", err)
	} else if n > 0 {
		slog.Info("last-good entries restored", "count", n)
	}

	// ── 7. Pipeline ─────────────────────────────────────────────────
	orch := pipeline.New(
		fetcher,
		extractor.New(extractor.Options{MinMagnitude: cfg.Trust.MinMagnitude}),
		trust.NewEvaluator(trust.Config{
			MinMagnitude:       cfg.Trust.MinMagnitude,
			RecurringThreshold: cfg.Trust.RecurringThreshold,
		}, nil),
		lastGood,
		selectors,
	)

	// ── 8. HTTP server ──────────────────────────────────────────────
	router := api.NewRouter(ctx, orch, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           cors.AllowAll().Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred closers drain the page pool, kill Chrome and close the store.
	slog.Info("price tracker stopped")
}

// buildStrategies turns FETCH_ORDER into fetch strategies. A nil rodFetch
// keeps the rendered strategy in place but makes it fail fast.
func buildStrategies(cfg *config.Config, rodFetch engine.RodFetchFunc) ([]engine.Strategy, error) {
	var out []engine.Strategy
	seen := make(map[string]bool)
	for _, name := range cfg.Fetch.Order {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "http":
			out = append(out, engine.Strategy{
				Engine:   engine.NewHTTPEngine(),
				Attempts: cfg.Fetch.HTTPAttempts,
				Timeout:  cfg.Fetch.HTTPTimeout,
				MinBytes: cfg.Fetch.MinLightBytes,
			})
		case "rendered":
			out = append(out, engine.Strategy{
				Engine:   engine.NewRodEngine(rodFetch),
				Attempts: cfg.Fetch.RenderAttempts,
				Timeout:  cfg.Fetch.RenderTimeout,
				MinBytes: cfg.Fetch.MinRenderedBytes,
			})
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no fetch strategies configured")
	}
	return out, nil
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
