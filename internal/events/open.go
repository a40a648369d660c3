package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/config"
	"github.com/pitabwire/dealerdesk/internal/observability"
)

// Open creates the publisher selected by cfg.Driver.
func Open(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.EventsNone, "":
		logger.Info("event publisher: none")
		return NopPublisher{}, nil
	case config.EventsKafka:
		p, err := NewKafkaPublisher(KafkaConfig{
			Brokers:      cfg.Brokers,
			Topic:        cfg.Topic,
			BatchTimeout: cfg.BatchTimeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("event publisher: kafka", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
		return p, nil
	default:
		return nil, fmt.Errorf("events: unsupported driver %q", cfg.Driver)
	}
}

// Instrumented wraps a Publisher with metrics and tracing spans.
type Instrumented struct {
	Publisher
	metrics *observability.Metrics
}

// NewInstrumented wraps next. A nil metrics disables metric recording.
func NewInstrumented(next Publisher, metrics *observability.Metrics) *Instrumented {
	return &Instrumented{Publisher: next, metrics: metrics}
}

// Publish delegates and records the outcome.
func (p *Instrumented) Publish(ctx context.Context, event Event) error {
	ctx, span := observability.StartSpan(ctx, "events.publish",
		observability.AttrCollection.String(event.Collection),
		observability.AttrRecordID.String(string(event.RecordID)),
	)
	err := p.Publisher.Publish(ctx, event)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordEventPublished(event.Type, status)
	}
	observability.EndSpanWithError(span, err)
	return err
}

// HealthCheck delegates to the wrapped publisher when it supports health
// checks.
func (p *Instrumented) HealthCheck(ctx context.Context) error {
	if hc, ok := p.Publisher.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
