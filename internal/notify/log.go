package notify

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the log. It is the default backend and the
// fallback when a broker cannot be reached at startup.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "registration event",
		"event_id", event.ID,
		"event_type", string(event.Type),
		"session_id", event.SessionID,
		"step", event.Step,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
