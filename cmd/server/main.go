package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillstone/realtime-bridge/internal/api"
	"github.com/quillstone/realtime-bridge/internal/bus"
	"github.com/quillstone/realtime-bridge/internal/config"
	"github.com/quillstone/realtime-bridge/internal/realtime"
	"github.com/quillstone/realtime-bridge/internal/store"
	"github.com/quillstone/realtime-bridge/internal/websocket"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Redis spans process instances; without it change events only reach
	// subscribers connected to this one.
	var eventBus bus.Bus
	if cfg.RedisURL != "" {
		redisBus, err := bus.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		eventBus = redisBus
		logger.Info("connected to Redis")
	} else {
		eventBus = bus.NewMemory(logger)
		logger.Info("running on in-process bus", "hint", "set REDIS_URL to fan out across instances")
	}
	defer eventBus.Close()

	registry := realtime.NewRegistry()
	handler := realtime.NewHandler(registry, pgStore, pgStore, pgStore, logger)
	dispatcher := realtime.NewDispatcher(registry, pgStore, pgStore, pgStore, pgStore, logger)
	listener := realtime.NewListener(eventBus, cfg.BusTopic, dispatcher, logger)
	source := realtime.NewSource(eventBus, cfg.BusTopic, cfg.SourceQueueSize, logger)

	// Track every content collection present at startup.
	schema, err := pgStore.Snapshot(ctx)
	if err != nil {
		logger.Error("failed to introspect schema", "error", err)
		os.Exit(1)
	}
	for _, name := range schema.CollectionNames() {
		source.RegisterCollection(name)
	}
	logger.Info("tracking collections", "count", len(schema.Collections))

	wsServer := websocket.NewServer(pgStore, handler, logger)
	router := api.NewRouter(registry, source, wsServer, pgStore, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := listener.Start(ctx); err != nil {
		logger.Error("failed to start bus listener", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		source.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		wsServer.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
