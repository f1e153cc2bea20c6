package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by New.
const (
	BackendLog      = "log"
	BackendRabbitMQ = "rabbitmq"
	BackendKafka    = "kafka"
)

// Options selects and configures a backend.
type Options struct {
	Backend        string
	RabbitURL      string
	RabbitExchange string
	KafkaBrokers   []string
	KafkaTopic     string
}

// New builds the configured publisher. A broker that cannot be reached at
// startup degrades to LogPublisher so the service can still serve
// registrations; an unknown backend name is an error.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Backend {
	case "", BackendLog:
		return NewLogPublisher(logger), nil
	case BackendRabbitMQ:
		p, err := NewRabbitPublisher(opts.RabbitURL, opts.RabbitExchange, logger)
		if err != nil {
			logger.WarnContext(ctx, "rabbitmq unavailable, falling back to log notifier", "error", err)
			return NewLogPublisher(logger), nil
		}
		return p, nil
	case BackendKafka:
		p, err := NewKafkaPublisher(ctx, opts.KafkaBrokers, opts.KafkaTopic, logger)
		if err != nil {
			logger.WarnContext(ctx, "kafka unavailable, falling back to log notifier", "error", err)
			return NewLogPublisher(logger), nil
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notifier backend %q", opts.Backend)
	}
}
