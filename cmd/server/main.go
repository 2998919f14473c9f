package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gameshelf/backend/internal/auth"
	"gameshelf/backend/internal/config"
	"gameshelf/backend/internal/database"
	"gameshelf/backend/internal/handler"
	"gameshelf/backend/internal/logging"
	"gameshelf/backend/internal/server"
	"gameshelf/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// @title           GameShelf API
// @version         1.0
// @description     Game collection and wishlist tracker with friends and chat.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	cfg := config.AppConfig

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	store, err := storage.Open(ctx, cfg.StorageURL, storage.Options{
		PublicURL: cfg.StoragePublicURL,
		MaxBytes:  cfg.MaxUploadBytes(),
	})
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.StorageURL).Msg("open storage")
	}
	defer store.Close()
	storage.Default = store

	if err := handler.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("register validators")
	}

	limiter := auth.NewRateLimiter(cfg.AuthRateLimit, time.Minute)
	go limiter.RunCleanup(ctx, 5*time.Minute, 30*time.Minute)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		log.Info().Msgf("Swagger UI is available at http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
