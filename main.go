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

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/api"
	"github.com/vrsandeep/mango-updater/internal/auth"
	"github.com/vrsandeep/mango-updater/internal/core"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Fatal error during application setup")
	}
	defer app.Close()

	// --- Admin Token Provisioning ---
	if app.Config().API.TokenHash == "" {
		token, err := auth.GenerateToken(24)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not generate admin token")
		}
		hash, err := auth.HashToken(token)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not hash admin token")
		}
		app.Config().API.TokenHash = hash
		log.Warn().Msg("==================================================")
		log.Warn().Msg("No api.token_hash configured. Generated a token for this run.")
		log.Warn().Str("token", token).Msg("Admin token")
		log.Warn().Str("token_hash", hash).Msg("Set api.token_hash to keep it across restarts")
		log.Warn().Msg("==================================================")
	}

	if err := app.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background services")
	}

	// Check once on startup; the scheduler takes over afterwards.
	go func() {
		if err := app.JobManager().RunJob("update-check", app); err != nil {
			log.Warn().Err(err).Msg("Initial update check could not start")
		}
	}()

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.Config().Port),
		Handler: server.Router(),
	}
	// --- Graceful Shutdown ---
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Starting admin server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Could not start server")
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting.")
}
