package workers

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/soulnet-app/soulnet/internal/tasks"
	"github.com/soulnet-app/soulnet/internal/upload"
)

// Enqueuer is the part of the asynq client the scheduler needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CleanupScheduler enqueues temp upload cleanup on a cron schedule.
type CleanupScheduler struct {
	client   Enqueuer
	schedule cron.Schedule
	logger   zerolog.Logger
	now      func() time.Time
	next     time.Time
}

// NewCleanupScheduler parses a standard 5-field cron expression.
func NewCleanupScheduler(client Enqueuer, cronExpr string, logger zerolog.Logger) (*CleanupScheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	return &CleanupScheduler{
		client:   client,
		schedule: schedule,
		logger:   logger.With().Str("component", "cleanup-scheduler").Logger(),
		now:      time.Now,
	}, nil
}

// Run checks once a minute until ctx is done.
func (s *CleanupScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues a cleanup when one is due and reports whether it did.
func (s *CleanupScheduler) Tick(ctx context.Context) bool {
	now := s.now()
	if s.next.IsZero() {
		s.next = s.schedule.Next(now)
		s.logger.Debug().Time("next_cleanup_at", s.next).Msg("Cleanup scheduled")
		return false
	}
	if now.Before(s.next) {
		return false
	}

	// Advance first so a failing queue is retried on the next slot, not
	// every minute.
	s.next = s.schedule.Next(now)

	task, err := tasks.NewCleanupTempUploadsTask(upload.FolderTemp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create cleanup task")
		return false
	}
	info, err := s.client.EnqueueContext(ctx, task, asynq.Queue("low"), asynq.Unique(time.Hour))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enqueue cleanup task")
		return false
	}

	s.logger.Info().
		Str("task_id", info.ID).
		Time("next_cleanup_at", s.next).
		Msg("Cleanup task enqueued")
	return true
}
