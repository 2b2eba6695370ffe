package scheduler_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/health"
)

// ---- fake clock ----

// fakeClock only moves when told to. After advances the clock by d and
// returns a ready channel, so a polling loop walks forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// advanceTo never moves the clock backwards.
func (c *fakeClock) advanceTo(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
}

// ---- synchronous timer ----

// syncTimer fires every registered trigger inside Start, in fire-time order,
// moving the fake clock to each trigger's instant. Triggers registered by a
// callback are fired in the same pass.
type syncTimer struct {
	clock   *fakeClock
	seq     int
	pending []syncTrigger
	stopped bool
	fired   []time.Time
}

type syncTrigger struct {
	at  time.Time
	seq int
	fn  func()
}

func newSyncTimer(c *fakeClock) *syncTimer { return &syncTimer{clock: c} }

func (t *syncTimer) At(at time.Time, fn func()) {
	if t.stopped {
		return
	}
	t.seq++
	t.pending = append(t.pending, syncTrigger{at: at, seq: t.seq, fn: fn})
}

func (t *syncTimer) Start() {
	for len(t.pending) > 0 && !t.stopped {
		sort.SliceStable(t.pending, func(i, j int) bool {
			if t.pending[i].at.Equal(t.pending[j].at) {
				return t.pending[i].seq < t.pending[j].seq
			}
			return t.pending[i].at.Before(t.pending[j].at)
		})
		next := t.pending[0]
		t.pending = t.pending[1:]
		t.clock.advanceTo(next.at)
		t.fired = append(t.fired, next.at)
		next.fn()
	}
}

func (t *syncTimer) Stop() {
	t.stopped = true
	t.pending = nil
}

// ---- recorder ----

type recordedEvent struct {
	name string
	data map[string]any
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Record(_ context.Context, name string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name, data})
}

func (r *fakeRecorder) named(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *fakeRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.name
	}
	return out
}

// ---- health ----

type fakeMonitor struct {
	ensure func(ctx context.Context, s health.Session) health.Report
}

func (m *fakeMonitor) EnsureHealthy(ctx context.Context, s health.Session) health.Report {
	return m.ensure(ctx, s)
}

// deadSession is dead until aliveAfter recovery steps have been attempted.
type deadSession struct {
	aliveAfter int
	steps      int
}

func (s *deadSession) IsAlive(context.Context) (bool, error) {
	return s.aliveAfter >= 0 && s.steps >= s.aliveAfter, nil
}
func (s *deadSession) SoftReset(context.Context) error       { s.steps++; return nil }
func (s *deadSession) ForceRelaunch(context.Context) error   { s.steps++; return nil }
func (s *deadSession) KillAndRelaunch(context.Context) error { s.steps++; return nil }
