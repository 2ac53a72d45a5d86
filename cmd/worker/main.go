package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/soulnet-app/soulnet/internal/config"
	"github.com/soulnet-app/soulnet/internal/logger"
	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/server"
	"github.com/soulnet-app/soulnet/internal/storage"
	"github.com/soulnet-app/soulnet/internal/tasks"
	"github.com/soulnet-app/soulnet/internal/workers"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	log.Info().Str("version", version).Msg("Starting SoulNet Asynq worker")

	db, err := server.OpenDatabase(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	var store storage.Store
	if cfg.Storage.Enabled() {
		store, err = storage.NewS3Store(context.Background(), cfg.Storage, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to object storage")
		}
	} else {
		log.Warn().Msg("S3_BUCKET not set, temp upload cleanup is disabled")
	}

	mailer := workers.NewMailer(cfg.SMTP, logger.Component("mailer"))

	// Initialize Asynq client (used by the cleanup scheduler)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})
	defer asynqClient.Close()

	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr: cfg.Redis.Address,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6, // password reset mail
				"default":  3,
				"low":      1, // housekeeping
			},
			Logger: &asynqLogger{log: log},
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()

	mux.HandleFunc(tasks.TypePasswordResetEmail, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandlePasswordResetEmail(ctx, t, mailer, log)
	})
	mux.HandleFunc(tasks.TypeCleanupTempUploads, func(ctx context.Context, t *asynq.Task) error {
		if store == nil {
			log.Warn().Msg("Skipping temp upload cleanup: no object storage configured")
			return nil
		}
		return workers.HandleCleanupTempUploads(ctx, t, db, store, cfg.Jobs.TempUploadTTL, log)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Jobs.CleanupSchedule != "" {
		scheduler, err := workers.NewCleanupScheduler(asynqClient, cfg.Jobs.CleanupSchedule, log)
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Jobs.CleanupSchedule).Msg("Invalid CLEANUP_SCHEDULE")
		}
		go scheduler.Run(ctx)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("Asynq worker server failed")
		}
	}()

	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")
	cancel()

	log.Info().Msg("Stopping Asynq worker - waiting for tasks to finish (30s timeout)...")
	asynqServer.Shutdown()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
