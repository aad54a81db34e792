package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamification/internal/auth"
	"gamification/internal/config"
	"gamification/internal/db"
	"gamification/internal/imagecheck"
	"gamification/internal/jobs"
	"gamification/internal/logging"
	"gamification/internal/metrics"
	"gamification/internal/moderation"
	"gamification/internal/server"
	"gamification/internal/storage"
	"gamification/internal/tournament"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := config.LoadDotEnv(".env")
	cfg := config.Load()

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Warn("failed to load .env", zap.Error(envErr))
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	m := metrics.New()
	store := storage.NewLocalStore(cfg.MediaRoot, cfg.MediaURL)

	var cache tournament.SummaryCache
	switch {
	case cfg.RedisURL == "":
	case cfg.SummaryCacheTTL() <= 0:
		logger.Info("summary cache disabled by SUMMARY_CACHE_TTL_SECONDS")
	default:
		client, err := tournament.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cache = tournament.NewRedisSummaryCache(client)
		}
	}

	tournamentSvc := tournament.NewService(conn, logger, tournament.Options{
		ItemScope: cfg.SummaryItemScope,
		Cache:     cache,
		CacheTTL:  cfg.SummaryCacheTTL(),
		Metrics:   m,
	})
	moderationSvc := moderation.NewService(conn, logger, store, imagecheck.New(cfg.MaxImageBytes), m, tournamentSvc)

	scheduler := jobs.NewScheduler(logger)
	maxAge := time.Duration(cfg.StagingMaxAgeHours) * time.Hour
	if err := scheduler.AddStagingSweep(cfg.StagingSweepSchedule, moderationSvc, maxAge); err != nil {
		logger.Fatal("invalid staging sweep schedule", zap.String("schedule", cfg.StagingSweepSchedule), zap.Error(err))
	}
	scheduler.Start()

	srv := server.New(server.Deps{
		DB:         conn,
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Auth:       auth.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer),
		Store:      store,
		Tournament: tournamentSvc,
		Moderation: moderationSvc,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gamification server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
