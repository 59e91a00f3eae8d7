// Package app wires the adapters into the build service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melih/diskforge/internal/adapters/blueprint"
	"github.com/melih/diskforge/internal/adapters/docker"
	"github.com/melih/diskforge/internal/adapters/events"
	"github.com/melih/diskforge/internal/adapters/history"
	"github.com/melih/diskforge/internal/adapters/http"
	"github.com/melih/diskforge/internal/adapters/metrics"
	"github.com/melih/diskforge/internal/config"
	"github.com/melih/diskforge/internal/core/ports"
	"github.com/melih/diskforge/internal/core/services/build"
)

// ShutdownTimeout bounds how long Close waits for running builds to clean up.
const ShutdownTimeout = 2 * time.Minute

// App is the wired build service with its HTTP surface.
type App struct {
	Service *build.Service
	History *history.SQLiteStore
	Runtime ports.ContainerRuntime

	cfg       config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	publisher *events.Publisher
	builds    *http.BuildHandler
}

// New opens the history database, connects the optional event bus and
// builds the service. Engine connections are made lazily.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	return newApp(cfg, logger, docker.NewAdapter(cfg.EngineHosts()))
}

func newApp(cfg config.Config, logger *slog.Logger, runtime ports.ContainerRuntime) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.HistoryDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	store, err := history.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observers := []ports.StatusObserver{metrics.NewRecorder(registry)}

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		observers = append(observers, publisher)
	}

	service := build.NewService(runtime, store,
		build.WithLogger(logger),
		build.WithBuilderImage(cfg.BuilderImage),
		build.WithStoragePath(cfg.StoragePath),
		build.WithBlueprintSource(blueprint.NewGitSource()),
		build.WithObservers(observers...),
	)

	return &App{
		Service:   service,
		History:   store,
		Runtime:   runtime,
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		publisher: publisher,
		builds:    http.NewBuildHandler(service, store, logger),
	}, nil
}

// Router returns the HTTP API: builds under /api/v1 and metrics under /metrics.
func (a *App) Router() *fiber.App {
	router := fiber.New(fiber.Config{DisableStartupMessage: true})

	router.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	a.builds.Register(v1)

	return router
}

// Serve listens on the configured address until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	router := a.Router()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server starting", "listen", a.cfg.Listen)
		errCh <- router.Listen(a.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	return router.Shutdown()
}

// Close cancels builds started through the API and waits for their cleanup,
// then releases the engine connections, the event bus and the database.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	drainErr := a.builds.Drain(ctx)
	if drainErr != nil {
		a.logger.Error("Builds did not stop in time", "error", drainErr)
	}

	if a.publisher != nil {
		a.publisher.Close()
	}
	var runtimeErr error
	if c, ok := a.Runtime.(io.Closer); ok {
		runtimeErr = c.Close()
	}
	return errors.Join(drainErr, runtimeErr, a.History.Close())
}
