package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Deliverer hands a notification to the outside world. Actual delivery
// (mail relay, SMS gateway) lives behind this seam.
type Deliverer interface {
	Deliver(ctx context.Context, n shared.Notification) error
}

// LogDeliverer writes notifications to the log. It stands in until a real
// relay is configured.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs the notification.
func (d LogDeliverer) Deliver(ctx context.Context, n shared.Notification) error {
	d.Logger.Info("notification",
		slog.String("target", n.Target),
		slog.String("title", n.Title),
		slog.String("severity", string(n.Severity)),
		slog.String("message", n.Message),
	)
	return nil
}

// NotifyJob delivers queued notifications.
type NotifyJob struct {
	Deliverer Deliverer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewNotifyJob initialises the notification handler.
func NewNotifyJob(deliverer Deliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyJob {
	return &NotifyJob{Deliverer: deliverer, Logger: logger, Metrics: metrics}
}

// Handle delivers one notification.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Deliverer == nil {
		return errors.New("notify: handler not configured")
	}
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskNotifySend)
	err := tracker.End(j.Deliverer.Deliver(ctx, shared.Notification{
		Target:   payload.Target,
		Title:    payload.Title,
		Message:  payload.Message,
		Severity: shared.NotifySeverity(payload.Severity),
	}))
	if err != nil {
		j.Logger.Error("notification delivery", slog.String("target", payload.Target), slog.Any("error", err))
	}
	return err
}
