package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/database"
	"github.com/stemsi/livesession-backend/internal/handler"
	"github.com/stemsi/livesession-backend/internal/logger"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/repository"
	"github.com/stemsi/livesession-backend/internal/router"
	"github.com/stemsi/livesession-backend/internal/service"
	"github.com/stemsi/livesession-backend/internal/validator"
	"github.com/stemsi/livesession-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Starting live session backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	sessionRepo := repository.NewLiveSessionRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	checkRepo := repository.NewCheckCompletionRepository(pool)
	scrubRepo := repository.NewScrubRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	events := service.NewEventPublisher(rdb, log)
	contentCache := service.NewContentCache(rdb, cfg.SessionCacheTTL, log)
	sessionService := service.NewLiveSessionService(sessionRepo, contentCache, events, rdb, cfg.JoinCodeAttempts, log)
	participantService := service.NewParticipantService(sessionService, participantRepo, responseRepo, checkRepo, events, rdb, log)
	progressService := service.NewProgressService(participantService, sessionService, rdb, log)
	monitorService := service.NewMonitorService(sessionService, participantService, responseRepo, checkRepo, scrubRepo, progressService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		LiveSession: handler.NewLiveSessionHandler(sessionService, participantService, monitorService, cfg.PollInterval, log),
		Participant: handler.NewParticipantHandler(sessionService, participantService, progressService, authService, cfg.PollInterval, log),
		Stream:      handler.NewStreamHandler(sessionService, monitorService, events, cfg.PollInterval, log),
		WS:          handler.NewWSHandler(participantService, progressService, events, cfg.PollInterval, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(pool, rdb, log),
	}

	joinLimiter := middleware.NewRateLimiter(cfg.JoinRateLimit, time.Minute)
	stopLimiter := make(chan struct{})
	go joinLimiter.Run(stopLimiter)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	progressWorker := worker.NewProgressWorker(participantRepo, rdb, log)
	scrubWorker := worker.NewScrubWorker(scrubRepo, rdb, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		progressWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		scrubWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, joinLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Long-lived SSE
	//    streams are cut off when it expires.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(stopLimiter)

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(worker.ShutdownTimeout + time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
