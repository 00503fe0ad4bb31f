package alerts

import (
	"context"
	"log/slog"
)

// LogSender writes alerts to the log instead of an external channel. It is
// used when no webhook is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, recipient, message string) (Delivery, error) {
	ref := ReferenceFrom(ctx)
	l.logger.Warn("ALERT", "recipient", recipient, "reference", ref, "message", message)
	return Delivery{Delivered: true, Reference: ref}, nil
}
