// Package sweeper expires idle registration sessions on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer removes idle sessions and reports how many it removed.
type Expirer interface {
	ExpireIdle(ctx context.Context) (int, error)
}

// Sweeper runs Expirer on a schedule. Overlapping runs are skipped.
type Sweeper struct {
	cron     *cron.Cron
	expirer  Expirer
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
}

func New(expirer Expirer, schedule string, logger *slog.Logger) *Sweeper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	return &Sweeper{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		expirer:  expirer,
		logger:   logger,
		schedule: schedule,
		timeout:  30 * time.Second,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("scheduled idle session sweep", "schedule", s.schedule)
	return nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	expired, err := s.expirer.ExpireIdle(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "idle session sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "idle session sweep", "expired", expired)
	}
}

// Stop stops scheduling; the returned context is done once a running sweep
// has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
