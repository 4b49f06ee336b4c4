package notification_apis

import "context"

// NotificationSender posts a human readable summary to a chat webhook. It is
// best-effort: callers log failures but never fail a reconciliation over one.
type NotificationSender interface {
	Send(ctx context.Context, message string, endpoint string) error
}
