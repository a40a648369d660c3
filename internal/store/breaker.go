package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/config"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/model"
)

// BreakerState is the state of a store circuit breaker. The numeric values
// are exported as the breaker state gauge.
type BreakerState int

const (
	// BreakerClosed lets every call through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerHalfOpen lets calls through to test whether the backend recovered.
	BreakerHalfOpen
	// BreakerOpen rejects calls without reaching the backend.
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker wraps a remote Store. After FailureThreshold consecutive backend
// failures it opens and fails fast with STORE_UNAVAILABLE for OpenTimeout,
// then half-opens; SuccessThreshold consecutive successes close it again and
// any failure reopens it. ErrNotFound and cancelled requests are not backend
// failures. HealthCheck always reaches the backend.
type Breaker struct {
	next    Store
	cfg     config.BreakerConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker wraps next. Zero thresholds fall back to 5 failures, 2
// successes and a 30s open timeout. metrics and logger may be nil.
func NewBreaker(next Store, cfg config.BreakerConfig, metrics *observability.Metrics, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{next: next, cfg: cfg, metrics: metrics, logger: logger, now: time.Now}
	b.publish(BreakerClosed)
	return b
}

// State returns the current state, half-opening an expired open breaker.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

func (b *Breaker) List(ctx context.Context, collection string) (out []model.Record, err error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	defer func() { b.record(err) }()
	return b.next.List(ctx, collection)
}

func (b *Breaker) Get(ctx context.Context, collection string, id model.Identifier) (out model.Record, err error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	defer func() { b.record(err) }()
	return b.next.Get(ctx, collection, id)
}

func (b *Breaker) Put(ctx context.Context, collection string, record model.Record) (out model.Record, created bool, err error) {
	if err := b.allow(); err != nil {
		return nil, false, err
	}
	defer func() { b.record(err) }()
	return b.next.Put(ctx, collection, record)
}

func (b *Breaker) Delete(ctx context.Context, collection string, id model.Identifier) (err error) {
	if err := b.allow(); err != nil {
		return err
	}
	defer func() { b.record(err) }()
	return b.next.Delete(ctx, collection, id)
}

// HealthCheck pings the backend regardless of the breaker state.
func (b *Breaker) HealthCheck(ctx context.Context) error {
	return b.next.HealthCheck(ctx)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	if b.state == BreakerOpen {
		return model.NewStoreUnavailableError()
	}
	return nil
}

// expire half-opens an open breaker whose timeout has elapsed. Must be
// called with the lock held.
func (b *Breaker) expire() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(BreakerHalfOpen)
	}
}

func (b *Breaker) record(err error) {
	failed := err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.logger.Error("record store circuit opened",
				zap.Int("consecutive_failures", b.failures),
				zap.Error(err),
			)
			b.open()
		}
	case BreakerHalfOpen:
		if failed {
			b.logger.Warn("record store trial call failed, circuit reopened", zap.Error(err))
			b.open()
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.logger.Info("record store circuit closed")
			b.transition(BreakerClosed)
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(BreakerOpen)
}

func (b *Breaker) transition(to BreakerState) {
	b.state = to
	b.failures = 0
	b.successes = 0
	b.publish(to)
}

func (b *Breaker) publish(state BreakerState) {
	if b.metrics != nil {
		b.metrics.SetStoreBreakerState(float64(state))
	}
}

// Guard wraps a remote backend in a Breaker when cfg enables one. The memory
// store is returned as is.
func Guard(backend Store, cfg config.StoreConfig, metrics *observability.Metrics, logger *zap.Logger) Store {
	if !cfg.Breaker.Enabled || cfg.Driver == config.StoreMemory || cfg.Driver == "" {
		return backend
	}
	return NewBreaker(backend, cfg.Breaker, metrics, logger)
}
