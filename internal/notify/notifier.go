// Package notify tells an operator what the enforcer did.
package notify

import (
	"context"
	"log/slog"
)

// Notification represents a notification message.
type Notification struct {
	Subject string
	Body    string
}

// Notifier is the interface for sending notifications.
type Notifier interface {
	// Send sends a notification.
	Send(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the log. It is used when no operator
// handle is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, notification Notification) error {
	slog.Info("notification",
		"subject", notification.Subject,
		"body", notification.Body,
	)
	return nil
}
