package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type stubSweeper struct {
	swept int
	err   error
	at    time.Time
}

func (s *stubSweeper) SweepDepositDeadlines(ctx context.Context, now time.Time) (int, error) {
	s.at = now
	return s.swept, s.err
}

type stubReconciler struct {
	singles []int64
	allRuns int
	err     error
}

func (s *stubReconciler) Reconcile(ctx context.Context, invoiceID int64) error {
	s.singles = append(s.singles, invoiceID)
	return s.err
}

func (s *stubReconciler) ReconcileAll(ctx context.Context) (int, error) {
	s.allRuns++
	return 4, s.err
}

type stubDeliverer struct {
	delivered []shared.Notification
}

func (s *stubDeliverer) Deliver(ctx context.Context, n shared.Notification) error {
	s.delivered = append(s.delivered, n)
	return nil
}

func TestDepositSweepJobHandle(t *testing.T) {
	sweeper := &stubSweeper{swept: 2}
	job := NewDepositSweepJob(sweeper, slog.Default(), nil)

	task, err := NewDepositSweepTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.False(t, sweeper.at.IsZero())
}

func TestDepositSweepJobPropagatesError(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("db down")}
	job := NewDepositSweepJob(sweeper, slog.Default(), nil)

	task, err := NewDepositSweepTask()
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

func TestReconcileJobTargetsOneInvoice(t *testing.T) {
	rec := &stubReconciler{}
	job := NewReconcileJob(rec, slog.Default(), nil)

	task, err := NewReconcileTask(ReconcilePayload{InvoiceID: 42})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{42}, rec.singles)
	require.Zero(t, rec.allRuns)
}

func TestReconcileJobRunsAllWhenUnscoped(t *testing.T) {
	rec := &stubReconciler{}
	job := NewReconcileJob(rec, slog.Default(), nil)

	task, err := NewReconcileTask(ReconcilePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, rec.allRuns)
	require.Empty(t, rec.singles)
}

func TestNotifyJobDeliversPayload(t *testing.T) {
	deliverer := &stubDeliverer{}
	job := NewNotifyJob(deliverer, slog.Default(), nil)

	task, err := NewNotifyTask(shared.Notification{
		Target:   "customer:7",
		Title:    "Order closed",
		Message:  "deadline passed",
		Severity: shared.SeverityWarning,
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, deliverer.delivered, 1)
	require.Equal(t, "customer:7", deliverer.delivered[0].Target)
	require.Equal(t, shared.SeverityWarning, deliverer.delivered[0].Severity)
}

func TestNotifyJobSkipsMalformedPayload(t *testing.T) {
	deliverer := &stubDeliverer{}
	job := NewNotifyJob(deliverer, slog.Default(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskNotifySend, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, deliverer.delivered)
}

func TestClientEnqueueNotify(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(asynq.RedisClientOpt{Addr: srv.Addr()})
	require.NoError(t, err)
	defer client.Close()

	info, err := client.EnqueueNotify(context.Background(), shared.Notification{
		Target:   "role:warehouse",
		Title:    "Low stock",
		Severity: shared.SeverityInfo,
	})
	require.NoError(t, err)
	require.Equal(t, TaskNotifySend, info.Type)
	require.Equal(t, QueueDefault, info.Queue)
}
