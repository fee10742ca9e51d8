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

	"github.com/isdelr/chirper-be/internal/api"
	"github.com/isdelr/chirper-be/internal/api/middleware"
	"github.com/isdelr/chirper-be/internal/auth"
	"github.com/isdelr/chirper-be/internal/config"
	"github.com/isdelr/chirper-be/internal/database"
	"github.com/isdelr/chirper-be/internal/logger"
	"github.com/isdelr/chirper-be/internal/media"
	"github.com/isdelr/chirper-be/internal/metrics"
	"github.com/isdelr/chirper-be/internal/monitoring"
	"github.com/isdelr/chirper-be/internal/services"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/isdelr/chirper-be/internal/store/mongostore"
	"github.com/isdelr/chirper-be/internal/store/sqlstore"
	"github.com/isdelr/chirper-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

const (
	limiterCleanupInterval = time.Minute
	limiterMaxIdle         = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	// Set up storage
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize store")
	}
	defer st.Close()

	storage, err := openMedia(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Media.Backend).Msg("Failed to initialize media storage")
	}
	library := media.NewLibrary(storage, cfg.Media.MaxUploadBytes)

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	m := metrics.New()
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL)

	// Set up services
	eventService := services.NewEventService(st, hub, m)
	userService := services.NewUserService(st, library, tokens, eventService, cfg.BcryptCost)
	tweetService := services.NewTweetService(st, library, eventService)

	// Set up and run the background reconciler
	reconciler, err := monitoring.NewReconciler(st, eventService, m, cfg.ReconcileSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize reconciler")
	}
	reconciler.Start()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(limiterCleanupInterval, limiterMaxIdle, stopCleanup)

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Store:       st,
		Tokens:      tokens,
		Users:       userService,
		Tweets:      tweetService,
		Events:      eventService,
		Media:       library,
		Hub:         hub,
		Metrics:     m,
		AuthLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("store", cfg.Database.Driver).Str("media", cfg.Media.Backend).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	reconciler.Stop()
	close(stopCleanup)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}

func openStore(ctx context.Context, cfg config.Database) (store.Store, error) {
	if cfg.Driver == "mongo" {
		st, err := mongostore.New(ctx, cfg.DSN, cfg.Name)
		if err != nil {
			return nil, err
		}
		return st, nil
	}

	db, err := database.New(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return sqlstore.New(db), nil
}

func openMedia(ctx context.Context, cfg *config.Config) (media.Storage, error) {
	if cfg.Media.Backend == "minio" {
		storage, err := media.NewMinioStorage(ctx, media.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return storage, nil
	}

	storage, err := media.NewLocalStorage(cfg.Media.Dir)
	if err != nil {
		return nil, err
	}
	return storage, nil
}
