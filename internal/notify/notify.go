// Package notify delivers new alerts to the outside world.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/STRATINT/alertwatch/internal/models"
)

// Notifier is called once per new alert. A returned error aborts the rest
// of the poll cycle.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert models.Alert) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, alert models.Alert) error {
	return f(ctx, alert)
}

// LogNotifier writes each alert as a structured log line.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, alert models.Alert) error {
	n.logger.InfoContext(ctx, "new alert",
		"id", alert.ID.String(),
		"date", alert.Date,
		"source", alert.Source,
		"core_message", alert.CoreMessage)
	return nil
}

// Multi runs notifiers in order and stops at the first failure.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, alert models.Alert) error {
	for i, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			return fmt.Errorf("notifier %d: %w", i, err)
		}
	}
	return nil
}
