package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// Reconciler re-derives payment state for invoices.
type Reconciler interface {
	Reconcile(ctx context.Context, invoiceID int64) error
	ReconcileAll(ctx context.Context) (int, error)
}

// ReconcileJob repairs invoices whose post-payment reconcile was lost.
type ReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle reconciles one invoice, or every invoice when the payload names none.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskBillingReconcile)
	if payload.InvoiceID > 0 {
		err := tracker.End(j.Reconciler.Reconcile(ctx, payload.InvoiceID))
		if err != nil {
			j.Logger.Error("reconcile invoice", slog.Int64("invoice_id", payload.InvoiceID), slog.Any("error", err))
			return err
		}
		j.Metrics.AddReconciled(1)
		return nil
	}

	done, err := j.Reconciler.ReconcileAll(ctx)
	if err = tracker.End(err); err != nil {
		j.Logger.Error("reconcile all", slog.Any("error", err))
		return err
	}
	j.Metrics.AddReconciled(done)
	return nil
}
