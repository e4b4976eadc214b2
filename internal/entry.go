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

	"github.com/multicare-dataset/website/internal/api"
	"github.com/multicare-dataset/website/internal/casehub"
	"github.com/multicare-dataset/website/internal/dataset"
	"github.com/multicare-dataset/website/internal/mcpserver"
	"github.com/multicare-dataset/website/internal/sse"
	"github.com/multicare-dataset/website/internal/store"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	src    *dataset.FS
	db     *store.DB
	svc    *casehub.Service
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

func setup(opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("dataset_path", cfg.Dataset.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("min_year", cfg.Dataset.MinYear),
		slog.Int("max_year", cfg.Dataset.MaxYear),
		slog.String("log_level", cfg.App.LogLevel.String()))

	src, err := dataset.NewFS(cfg.Dataset.Path, cfg.Dataset.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("init dataset: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	svc := casehub.NewService(db, src, cfg.Search.Options(), logger)
	return &runtime{cfg: cfg, logger: logger, src: src, db: db, svc: svc}, nil
}

// sync brings the store up to date with the dataset directory.
func (rt *runtime) sync(ctx context.Context) (*store.SyncReport, error) {
	report, err := store.Sync(ctx, rt.db, rt.src, rt.cfg.Dataset.Years(), rt.logger)
	if err != nil {
		return nil, err
	}
	if report.Changed() {
		rt.svc.Invalidate()
	}
	return report, nil
}

// Import synchronizes the store with the dataset once and returns the report.
func Import(ctx context.Context, opts ...Option) (*store.SyncReport, error) {
	rt, err := setup(opts)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	report, err := rt.sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("import dataset: %w", err)
	}
	rt.logger.Info("Dataset imported",
		slog.Int("imported", len(report.Imported)),
		slog.Int("removed", len(report.Removed)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("rows", report.Rows))
	if len(report.Failed) > 0 {
		return report, fmt.Errorf("import dataset: %d file(s) failed", len(report.Failed))
	}
	return report, nil
}

// ServeMCP exposes the case hub over MCP on stdin/stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.sync(ctx); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger, svc := rt.cfg, rt.logger, rt.svc

	// Run initial sync.
	if _, err := rt.sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.App.EventThrottle)
	defer broker.Close()

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Stats(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Reload the store when dataset files change and notify browsers.
	if cfg.Dataset.Watch {
		g.Go(func() error {
			err := store.Watch(gCtx, rt.db, rt.src, rt.src.Root(), cfg.Dataset.Years(), logger, func(report *store.SyncReport) {
				svc.Invalidate()
				broker.PublishSync(sse.SyncEvent{
					Imported: report.Imported,
					Removed:  report.Removed,
					Failed:   report.Failed,
				})
			})
			if err != nil {
				logger.Error("dataset watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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
		defer signal.Stop(quit)

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
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
