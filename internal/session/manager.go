package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/metadata"
	"github.com/pitabwire/dealerdesk/internal/table"
)

// Session kinds, used as metric labels.
const (
	KindTableView = "table_view"
	KindForm      = "form"
)

// Config configures a Manager.
type Config struct {
	TTL             time.Duration
	MaxSessions     int
	CleanupInterval time.Duration
}

// Manager owns the table view and form session stores and expires idle
// sessions in the background.
type Manager struct {
	Views *Store[*table.Engine]
	Forms *Store[*metadata.FormSession]

	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a Manager. opts.Metrics may be nil; opts.TTL and
// opts.MaxSessions are taken from cfg.
func NewManager(cfg Config, opts Options) *Manager {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	opts.TTL = cfg.TTL
	opts.MaxSessions = cfg.MaxSessions
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		Views:    NewStore[*table.Engine](KindTableView, opts),
		Forms:    NewStore[*metadata.FormSession](KindForm, opts),
		interval: cfg.CleanupInterval,
		logger:   opts.Logger,
		stop:     make(chan struct{}),
	}
}

// Start runs the cleanup loop until ctx is cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Sweep expires idle sessions in both stores.
func (m *Manager) Sweep() int {
	return m.Views.Sweep() + m.Forms.Sweep()
}

// Close stops the cleanup loop and closes every session, stopping engine
// timers.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.Views.Close()
	m.Forms.Close()
	m.logger.Info("sessions closed")
}
