package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifySend delivers one notification.
	TaskNotifySend = "notify:send"
	// TaskDepositSweep closes undeposited sales orders past their deadline.
	TaskDepositSweep = "sales:deposit_sweep"
	// TaskBillingReconcile re-runs payment reconciliation.
	TaskBillingReconcile = "billing:reconcile"
)

// NotifyPayload carries one notification through the queue.
type NotifyPayload struct {
	Target   string `json:"target"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// NewNotifyTask constructs an Asynq task for one notification.
func NewNotifyTask(n shared.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(NotifyPayload{
		Target:   n.Target,
		Title:    n.Title,
		Message:  n.Message,
		Severity: string(n.Severity),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifySend, data), nil
}

// DepositSweepPayload is empty today; the sweep always uses wall-clock now.
type DepositSweepPayload struct{}

// NewDepositSweepTask constructs the deposit sweep task.
func NewDepositSweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(DepositSweepPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepositSweep, data), nil
}

// ReconcilePayload targets one invoice, or every invoice when InvoiceID is 0.
type ReconcilePayload struct {
	InvoiceID int64 `json:"invoice_id"`
}

// NewReconcileTask constructs a reconcile task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingReconcile, data), nil
}

// AsynqNotifier enqueues notifications instead of delivering them inline, so
// a slow or down mail relay never stalls a request path.
type AsynqNotifier struct {
	client *Client
}

// NewAsynqNotifier wraps a jobs client as a shared.Notifier.
func NewAsynqNotifier(client *Client) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

// Notify enqueues the notification for asynchronous delivery.
func (n *AsynqNotifier) Notify(ctx context.Context, msg shared.Notification) error {
	_, err := n.client.EnqueueNotify(ctx, msg)
	return err
}
