package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/streamchat/agent"
	"github.com/room4-2/streamchat/config"
	"github.com/room4-2/streamchat/logging"
	"github.com/room4-2/streamchat/relay"
	"github.com/room4-2/streamchat/server"
)

func main() {
	cfg, err := config.LoadRelayConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis only mirrors session state, so the relay runs without it.
	// The manager closes the registry on shutdown.
	var registry relay.Registry
	if cfg.RedisURL != "" {
		redisRegistry, err := relay.NewRedisRegistry(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.SessionTimeout)
		if err != nil {
			logger.Warn().Err(err).Msg("session registry disabled")
		} else {
			registry = redisRegistry
			logger.Info().Str("addr", cfg.RedisURL).Msg("connected to Redis")
		}
	}

	manager := relay.NewManager(cfg, agent.NewDialer(cfg.GeminiAPIKey, logger), registry, logger)
	go manager.StartCleanupRoutine(ctx)

	srv := server.New(cfg, manager, logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info().Msg("received shutdown signal")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}

	logger.Info().Msg("server stopped")
}
