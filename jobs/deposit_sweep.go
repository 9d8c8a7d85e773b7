package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// DepositSweeper closes undeposited orders whose deadline has elapsed.
type DepositSweeper interface {
	SweepDepositDeadlines(ctx context.Context, now time.Time) (int, error)
}

// DepositSweepJob runs the deadline sweep on a cron schedule.
type DepositSweepJob struct {
	Sweeper DepositSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDepositSweepJob initialises the sweep handler.
func NewDepositSweepJob(sweeper DepositSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepositSweepJob {
	return &DepositSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep pass.
func (j *DepositSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("deposit sweep: handler not configured")
	}
	var payload DepositSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskDepositSweep)
	swept, err := j.Sweeper.SweepDepositDeadlines(ctx, j.clock())
	if err = tracker.End(err); err != nil {
		j.Logger.Error("deposit sweep", slog.Any("error", err))
		return err
	}
	j.Metrics.AddSwept(swept)
	if swept > 0 {
		j.Logger.Info("deposit sweep closed orders", slog.Int("count", swept))
	}
	return nil
}
