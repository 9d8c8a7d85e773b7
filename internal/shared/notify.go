package shared

import "context"

// NotifySeverity grades notification urgency.
type NotifySeverity string

const (
	SeverityInfo     NotifySeverity = "INFO"
	SeverityWarning  NotifySeverity = "WARNING"
	SeverityCritical NotifySeverity = "CRITICAL"
)

// Notification is a fire-and-forget message to a role or user.
type Notification struct {
	Target   string
	Title    string
	Message  string
	Severity NotifySeverity
}

// Notifier delivers notifications. Implementations must be safe to call from
// inside business flows: a delivery failure is the implementation's problem
// and must never surface into the triggering transaction.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards notifications; used in tests and as a default.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, n Notification) error { return nil }
