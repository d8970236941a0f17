package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagespace/internal/api"
	"pagespace/internal/config"
	"pagespace/internal/db"
	"pagespace/internal/logging"
	"pagespace/internal/repository"
	"pagespace/internal/services/collaboration"
	"pagespace/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.LogJSON,
	})
	log := logging.WithComponent("server")
	log.Info().Msg("starting pagespace server")

	jaegerShutdown, err := telemetry.InitJaeger("pagespace", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize jaeger, continuing without tracing")
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to shutdown jaeger")
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	// Repositories: the persistence collaborator shared by the REST API
	// and the realtime layer.
	workspaceRepo := repository.NewWorkspaceRepository(database.DB)
	pageRepo := repository.NewPageRepository(database.DB)
	blockRepo := repository.NewBlockRepository(database.DB)

	// Realtime collaboration hub and its transport handler.
	hub := collaboration.NewHub(pageRepo, blockRepo)
	wsHandler := collaboration.NewWebSocketHandler(hub,
		cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSSendQueueSize)

	handler := api.NewHandler(workspaceRepo, pageRepo, blockRepo)
	router := api.SetupRoutes(handler, wsHandler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Close every live websocket after the HTTP listener stops accepting.
	hub.Shutdown()

	log.Info().Msg("server shutdown complete")
}
