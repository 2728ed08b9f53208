package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Janitor периодически снимает устаревшие заявки и незапущенные матчи.
type Janitor struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func NewJanitor(matchmaking MatchmakingService, ttl, interval time.Duration, logger *slog.Logger) (*Janitor, error) {
	if ttl <= 0 || interval <= 0 {
		return nil, fmt.Errorf("janitor requires positive ttl and interval, got %s and %s", ttl, interval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			if _, err := matchmaking.ExpireStale(ctx, ttl); err != nil {
				logger.ErrorContext(ctx, "Expiry sweep failed", slog.Any("error", err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("matchmaking-expiry"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule expiry job: %w", err)
	}

	return &Janitor{scheduler: sched, logger: logger}, nil
}

func (j *Janitor) Start() {
	j.scheduler.Start()
	j.logger.Info("Expiry janitor started")
}

func (j *Janitor) Shutdown() error {
	return j.scheduler.Shutdown()
}
