package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/table"
	"github.com/pitabwire/dealerdesk/model"
)

type fakeSession struct {
	closed atomic.Int32
}

func (f *fakeSession) Close() { f.closed.Add(1) }

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newTestStore(t *testing.T, opts Options) (*Store[*fakeSession], *testClock) {
	t.Helper()
	s := NewStore[*fakeSession]("test", opts)
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.now = clock.now
	return s, clock
}

func isSessionNotFound(err error) bool {
	var env *model.ErrorEnvelope
	return errors.As(err, &env) && env.Code == model.ErrSessionNotFound
}

func TestStore_CreateGetDelete(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	v := &fakeSession{}

	id := s.Create("users", v)
	entry, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Value != v || entry.Owner != "users" || entry.ID != id {
		t.Errorf("entry = %+v", entry)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if v.closed.Load() != 1 {
		t.Error("Delete should close the session")
	}
	if _, err := s.Get(id); !isSessionNotFound(err) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := s.Delete(id); !isSessionNotFound(err) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestStore_expiresIdleSessions(t *testing.T) {
	s, clock := newTestStore(t, Options{TTL: time.Minute})
	idle, active := &fakeSession{}, &fakeSession{}
	idleID := s.Create("a", idle)
	activeID := s.Create("b", active)

	clock.t = clock.t.Add(45 * time.Second)
	if _, err := s.Get(activeID); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(30 * time.Second)

	if _, err := s.Get(idleID); !isSessionNotFound(err) {
		t.Errorf("idle Get err = %v, want expired", err)
	}
	if idle.closed.Load() != 1 {
		t.Error("expired session not closed")
	}
	if _, err := s.Get(activeID); err != nil {
		t.Errorf("recently used session expired: %v", err)
	}
}

func TestStore_Sweep(t *testing.T) {
	s, clock := newTestStore(t, Options{TTL: time.Minute})
	a, b := &fakeSession{}, &fakeSession{}
	s.Create("a", a)
	clock.t = clock.t.Add(50 * time.Second)
	s.Create("b", b)
	clock.t = clock.t.Add(20 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if a.closed.Load() != 1 || b.closed.Load() != 0 {
		t.Errorf("closed a=%d b=%d", a.closed.Load(), b.closed.Load())
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_evictsLeastRecentlyUsedWhenFull(t *testing.T) {
	s, clock := newTestStore(t, Options{MaxSessions: 2})
	first, second, third := &fakeSession{}, &fakeSession{}, &fakeSession{}
	firstID := s.Create("a", first)
	clock.t = clock.t.Add(time.Second)
	secondID := s.Create("b", second)
	clock.t = clock.t.Add(time.Second)
	_, _ = s.Get(firstID)
	clock.t = clock.t.Add(time.Second)

	s.Create("c", third)

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if second.closed.Load() != 1 {
		t.Error("least recently used session not evicted")
	}
	if _, err := s.Get(secondID); !isSessionNotFound(err) {
		t.Errorf("evicted Get err = %v", err)
	}
	if _, err := s.Get(firstID); err != nil {
		t.Errorf("recently used session evicted: %v", err)
	}
}

func TestStore_metrics(t *testing.T) {
	m := observability.InitMetrics(prometheus.NewRegistry())
	s, _ := newTestStore(t, Options{Metrics: m})

	id := s.Create("a", &fakeSession{})
	s.Create("b", &fakeSession{})
	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("test")); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}
	_ = s.Delete(id)
	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("test")); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	s.Close()
	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("test")); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestManager_CloseStopsEngineTimers(t *testing.T) {
	mgr := NewManager(Config{TTL: time.Minute}, Options{})

	engine := table.New(table.Config{HighlightWindow: time.Hour}, []model.Record{{"id": "r1"}})
	mgr.Views.Create("users", engine)
	engine.Highlight("r1")

	mgr.Close()
	if mgr.Views.Len() != 0 {
		t.Errorf("views left = %d", mgr.Views.Len())
	}
	if engine.Highlighted() != "" {
		t.Errorf("Highlighted = %q after Close", engine.Highlighted())
	}
	engine.Highlight("r1")
	if engine.Highlighted() != "" {
		t.Error("closed engine accepted a new highlight")
	}
	mgr.Close()
}

func TestManager_StartSweepsPeriodically(t *testing.T) {
	mgr := NewManager(Config{TTL: time.Millisecond, CleanupInterval: 5 * time.Millisecond}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := table.New(table.Config{}, nil)
	mgr.Views.Create("t", engine)
	mgr.Start(ctx)

	require.Eventually(t, func() bool {
		return mgr.Views.Len() == 0
	}, time.Second, 5*time.Millisecond)
	mgr.Close()
}
