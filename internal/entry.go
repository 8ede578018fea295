// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/ai"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/maintain"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/plugins"
	"github.com/starford/ansuz/internal/scanner"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/service"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/store"
)

// RunMCP starts the MCP stdio server over a headless core (no HTTP, no SSE).
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// MCP speaks on stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	index, err := search.New(db.Conn())
	if err != nil {
		return fmt.Errorf("init search index: %w", err)
	}
	linkGraph := graph.New(db.Conn())

	maintainer := maintain.New(db.Feed(), index, linkGraph, nil, logger)
	maintainer.Start()
	// Closing the store closes the feed, which lets the maintainer drain
	// and exit; Stop would block forever in the other order.
	defer func() {
		db.Close()
		maintainer.Stop()
	}()

	sc := scanner.New(db, nil, logger)
	defer sc.StopAll()

	super := plugins.New(db, cfg.Plugins.CallTimeout, logger)
	defer super.ShutdownAll()
	gateway := ai.New(db, super, logger)

	svc := service.New(db, index, linkGraph, sc, gateway, super, logger)
	return mcpserver.New(svc).ServeStdio()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// System of record.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Derived caches.
	index, err := search.New(db.Conn())
	if err != nil {
		return fmt.Errorf("init search index: %w", err)
	}
	linkGraph := graph.New(db.Conn())

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Maintenance worker: single consumer of the change feed, fans events
	// out to SSE after the derived caches reflect each change.
	maintainer := maintain.New(db.Feed(), index, linkGraph, func(c store.Change) {
		switch {
		case c.Op == store.OpDelete:
			broker.PublishDocEvent("deleted", c.Slug)
		case c.Created:
			broker.PublishDocEvent("created", c.Slug)
		default:
			broker.PublishDocEvent("updated", c.Slug)
		}
	}, logger)
	maintainer.Start()
	// Closing the store closes the feed, which lets the maintainer drain
	// and exit; Stop would block forever in the other order.
	defer func() {
		db.Close()
		maintainer.Stop()
	}()

	// Repository scanner with SSE progress fan-out.
	sc := scanner.New(db, func(jobID, _ string, files int) {
		broker.PublishScanProgress(jobID, files)
	}, logger)
	defer sc.StopAll()

	// Core plugin supervisor and AI gateway. The supervisor doubles as the
	// gateway's plugin invoker.
	super := plugins.New(db, cfg.Plugins.CallTimeout, logger)
	defer super.ShutdownAll()
	gateway := ai.New(db, super, logger)

	svc := service.New(db, index, linkGraph, sc, gateway, super, logger)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
