package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/topsignal/trader-go/internal/clients/projectx"
	"github.com/topsignal/trader-go/internal/config"
	"github.com/topsignal/trader-go/internal/database"
	"github.com/topsignal/trader-go/internal/events"
	"github.com/topsignal/trader-go/internal/modules/trades"
	"github.com/topsignal/trader-go/internal/scheduler"
	"github.com/topsignal/trader-go/internal/server"
	"github.com/topsignal/trader-go/pkg/logger"
)

func main() {
	// Load configuration first so the log level follows it
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting TopSignal trade mirror")

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		log.Warn().
			Strs("missing", missing).
			Msg("Gateway credentials incomplete, serving cached data only")
	}

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.InitSchemas(trades.InitSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schemas")
	}

	// Event bus
	bus := events.NewManager(log)

	// Gateway client and trade mirror
	gateway := projectx.NewClient(projectx.Config{
		BaseURL:  cfg.ProjectXBaseURL,
		Username: cfg.ProjectXUsername,
		APIKey:   cfg.ProjectXAPIKey,
		Log:      log,
	})
	tradesService := trades.NewService(db, gateway, bus, trades.Options{
		InitialLookbackDays:     cfg.InitialLookbackDays,
		SyncChunkDays:           cfg.SyncChunkDays,
		DaySyncLimit:            cfg.DaySyncLimit,
		YesterdayRefreshMinutes: cfg.YesterdayRefreshMinutes,
	})

	// Initialize scheduler
	sched := scheduler.New(log)
	if err := registerJobs(sched, db, cfg, tradesService, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:           cfg.Port,
		Log:            log,
		DB:             db,
		Config:         cfg,
		DevMode:        cfg.DevMode,
		TradesHandler:  trades.NewHandler(tradesService, log),
		SystemHandlers: server.NewSystemHandlers(log, db, tradesService, bus, sched),
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(sched *scheduler.Scheduler, db *database.DB, cfg *config.Config, tradesService *trades.Service, log zerolog.Logger) error {
	if err := sched.AddJob(cfg.SyncSchedule, scheduler.NewTradeSyncJob(scheduler.TradeSyncConfig{
		Log:     log,
		Service: tradesService,
	})); err != nil {
		return err
	}

	// Every 6 hours, offset from the sync schedule
	return sched.AddJob("0 30 */6 * * *", scheduler.NewIntegrityCheckJob(scheduler.IntegrityCheckConfig{
		Log: log,
		DB:  db,
	}))
}
