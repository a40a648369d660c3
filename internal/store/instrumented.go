package store

import (
	"context"
	"time"

	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/model"
)

// Instrumented wraps a Store with metrics and tracing spans.
type Instrumented struct {
	next    Store
	metrics *observability.Metrics
}

// NewInstrumented wraps next. A nil metrics disables metric recording.
func NewInstrumented(next Store, metrics *observability.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

func (s *Instrumented) observe(ctx context.Context, op, collection string) (context.Context, func(error)) {
	ctx, span := observability.StartSpan(ctx, "store."+op, observability.AttrCollection.String(collection))
	start := time.Now()
	return ctx, func(err error) {
		if s.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			s.metrics.RecordStoreOperation(op, status, time.Since(start))
		}
		observability.EndSpanWithError(span, err)
	}
}

func (s *Instrumented) List(ctx context.Context, collection string) (out []model.Record, err error) {
	ctx, done := s.observe(ctx, "list", collection)
	defer func() { done(err) }()
	return s.next.List(ctx, collection)
}

func (s *Instrumented) Get(ctx context.Context, collection string, id model.Identifier) (out model.Record, err error) {
	ctx, done := s.observe(ctx, "get", collection)
	defer func() { done(err) }()
	return s.next.Get(ctx, collection, id)
}

func (s *Instrumented) Put(ctx context.Context, collection string, record model.Record) (out model.Record, created bool, err error) {
	ctx, done := s.observe(ctx, "put", collection)
	defer func() { done(err) }()
	return s.next.Put(ctx, collection, record)
}

func (s *Instrumented) Delete(ctx context.Context, collection string, id model.Identifier) (err error) {
	ctx, done := s.observe(ctx, "delete", collection)
	defer func() { done(err) }()
	return s.next.Delete(ctx, collection, id)
}

func (s *Instrumented) HealthCheck(ctx context.Context) error {
	return s.next.HealthCheck(ctx)
}
