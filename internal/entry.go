// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dossier/internal/api"
	"github.com/starford/dossier/internal/contactservice"
	"github.com/starford/dossier/internal/inbox"
	"github.com/starford/dossier/internal/indexer"
	"github.com/starford/dossier/internal/mcpserver"
	"github.com/starford/dossier/internal/sse"
	"github.com/starford/dossier/internal/storage"
	"github.com/starford/dossier/internal/store"
)

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openDB(cfg *Config) (*store.DB, error) {
	db, err := store.Open(cfg.SQLite.Path, store.WithBusyTimeout(cfg.SQLite.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return db, nil
}

func newWorker(cfg *Config, db *store.DB, logger *slog.Logger) *indexer.Worker {
	return indexer.NewWorker(db,
		indexer.WithLogger(logger),
		indexer.WithPollInterval(cfg.Indexer.PollInterval),
		indexer.WithBatchSize(cfg.Indexer.BatchSize),
		indexer.WithLease(cfg.Indexer.Lease),
		indexer.WithRetry(cfg.Indexer.RetryBase, cfg.Indexer.RetryMax),
	)
}

func newService(cfg *Config, db *store.DB, logger *slog.Logger, opts ...contactservice.Option) *contactservice.Service {
	opts = append([]contactservice.Option{
		contactservice.WithLogger(logger),
		contactservice.WithOpTimeout(cfg.SQLite.OpTimeout),
		contactservice.WithTopN(cfg.Report.TopN),
	}, opts...)
	return contactservice.NewService(db, opts...)
}

func newImporter(cfg *Config, db *store.DB, svc *contactservice.Service, logger *slog.Logger, cb inbox.EventCallback) (*inbox.Importer, error) {
	if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Inbox.Path)
	if err != nil {
		return nil, fmt.Errorf("init inbox: %w", err)
	}
	return inbox.NewImporter(svc, db, files, logger, cb), nil
}

// Run starts the HTTP server, the search-vector worker, the stale-vector
// sweep and, when enabled, the inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg, os.Stdout)
	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	worker := newWorker(cfg, db, logger)
	svc := newService(cfg, db, logger,
		contactservice.WithIndexWakeup(worker.Notify),
		contactservice.WithChangeHook(func(ch contactservice.Change) {
			broker.PublishContactEvent(string(ch.Kind), ch.ID)
		}),
	)

	if cfg.Indexer.SweepSchedule != "" {
		sweeper, err := indexer.NewSweeper(db, cfg.Indexer.SweepSchedule, logger, worker.Notify)
		if err != nil {
			return err
		}
		// Contacts written before the outbox existed, or whose task was lost,
		// are picked up once at startup.
		if _, err := sweeper.Sweep(ctx); err != nil {
			logger.Warn("initial sweep failed", slog.String("error", err.Error()))
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	var importer *inbox.Importer
	if cfg.Inbox.Enabled {
		importer, err = newImporter(cfg, db, svc, logger, func(res inbox.Result) {
			broker.Publish(sse.Event{Type: sse.TypeInboxImported, Data: res})
		})
		if err != nil {
			return err
		}
	}

	apiRouter := api.NewRouter(svc, api.AuthConfig{
		Enabled:   cfg.Auth.AuthEnabled(),
		Token:     cfg.Auth.Token,
		ReadToken: cfg.Auth.ReadToken,
	}, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
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

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	// Search-vector worker.
	g.Go(func() error {
		return worker.Run(gCtx)
	})

	// Inbox watcher.
	if importer != nil {
		g.Go(func() error {
			return importer.Watch(gCtx)
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
		// SSE streams only end when their clients go away or the broker closes.
		broker.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdio. Logs go to stderr because stdout
// carries the protocol. Writes made elsewhere are picked up by the vector
// worker of the serving process, so none runs here.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	db, err := openDB(app.config)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := newService(app.config, db, logger)
	logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(svc, app.version).ServeStdio()
}

// Migrate runs a migration command against the configured database.
func Migrate(command string, args []string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stdout)
	return store.RunMigrate(logger, app.config.SQLite.Path, command, args)
}

// Reindex queues every contact for a search-vector refresh and drains the
// queue. It returns how many vectors were rebuilt.
func Reindex(ctx context.Context, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	logger := newLogger(app.config, os.Stdout)

	db, err := openDB(app.config)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	queued, err := db.EnqueueAll(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("reindex: queued", slog.Int("count", queued))

	done, err := newWorker(app.config, db, logger).Drain(ctx)
	if err != nil {
		return done, err
	}
	pending, err := db.PendingVectorTasks(ctx)
	if err != nil {
		return done, err
	}
	logger.Info("reindex: complete", slog.Int("refreshed", done), slog.Int("pending", pending))
	return done, nil
}

// Import runs one pass over the inbox directory. With force set, files are
// imported even when their checksum is unchanged.
func Import(ctx context.Context, force bool, opts ...Option) (inbox.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return inbox.Result{}, err
	}
	logger := newLogger(app.config, os.Stdout)

	db, err := openDB(app.config)
	if err != nil {
		return inbox.Result{}, err
	}
	defer db.Close()

	worker := newWorker(app.config, db, logger)
	svc := newService(app.config, db, logger)
	importer, err := newImporter(app.config, db, svc, logger, nil)
	if err != nil {
		return inbox.Result{}, err
	}
	res, err := importer.Sync(ctx, force)
	if err != nil {
		return res, err
	}
	if _, err := worker.Drain(ctx); err != nil {
		logger.Warn("import: vector refresh failed", slog.String("error", err.Error()))
	}
	return res, nil
}
