// Command feedbackd runs the feedback definition and aggregation
// engine: an HTTP API over PostgreSQL with a ristretto definition
// cache and best-effort NATS lifecycle events.
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	feedhttp "github.com/agentlens/feedback-engine/internal/adapter/http"
	feednats "github.com/agentlens/feedback-engine/internal/adapter/nats"
	"github.com/agentlens/feedback-engine/internal/adapter/natskv"
	"github.com/agentlens/feedback-engine/internal/adapter/postgres"
	"github.com/agentlens/feedback-engine/internal/adapter/ristretto"
	"github.com/agentlens/feedback-engine/internal/adapter/tiered"
	"github.com/agentlens/feedback-engine/internal/config"
	"github.com/agentlens/feedback-engine/internal/logger"
	"github.com/agentlens/feedback-engine/internal/middleware"
	"github.com/agentlens/feedback-engine/internal/port/cache"
	"github.com/agentlens/feedback-engine/internal/port/messagequeue"
	"github.com/agentlens/feedback-engine/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, configPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"path", configPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	local, err := ristretto.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer local.Close()

	// NATS is optional; without it the engine runs without lifecycle
	// events and with the in-process definition cache only.
	var queue messagequeue.Queue
	defCache := cache.Cache(local)
	if cfg.NATS.URL != "" {
		q, err := feednats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = q.Drain() }()
		queue = q

		remote, err := natskv.New(ctx, q.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		defCache = tiered.New(local, remote, cfg.Cache.DefinitionTTL)
		slog.Info("definition cache tiered", "l2_bucket", cfg.Cache.L2Bucket)
	} else {
		slog.Warn("nats disabled, lifecycle events will not be published")
	}

	// --- Service and HTTP ---

	svc := service.NewFeedbackService(
		postgres.NewDefinitionStore(pool),
		postgres.NewInstanceStore(pool),
		defCache,
		queue,
	)
	svc.SetAggregateParallel(cfg.Aggregation.MaxParallel)

	r := chi.NewRouter()
	r.Use(feedhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(feedhttp.SecurityHeaders)
	r.Use(feedhttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.WriteTimeout))

	feedhttp.MountRoutes(r, feedhttp.NewHandlers(svc), feedhttp.HealthDeps{
		DB:    pool,
		Queue: queue,
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
