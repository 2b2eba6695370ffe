package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/google/uuid"
)

const sinkWriteTimeout = 5 * time.Second

// Recorder receives lifecycle events. Implementations must be synchronous and
// preserve call order.
type Recorder interface {
	Record(ctx context.Context, name string, data map[string]any)
}

// Sink persists events. A failing sink is logged and skipped; it never blocks
// the run.
type Sink interface {
	Write(ctx context.Context, ev domain.Event) error
}

// Log is the run's event stream. It keeps every event in memory for the
// control panel and fans out to the configured sinks.
type Log struct {
	runID  string
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	events []domain.Event
}

func NewLog(runID string, logger *slog.Logger, sinks ...Sink) *Log {
	return &Log{
		runID:  runID,
		sinks:  sinks,
		logger: logger.With("component", "events"),
		now:    time.Now,
	}
}

// Record stamps and appends an event. The lock is held across sink writes so
// that persisted order matches call order.
func (l *Log) Record(ctx context.Context, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ev := domain.Event{
		ID:    uuid.NewString(),
		RunID: l.runID,
		Time:  l.now(),
		Name:  name,
		Data:  data,
	}
	l.events = append(l.events, ev)

	// Abort and failure events are recorded while the run context is being
	// cancelled; they must still reach the sinks.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkWriteTimeout)
	defer cancel()
	for _, s := range l.sinks {
		if err := s.Write(writeCtx, ev); err != nil {
			l.logger.WarnContext(ctx, "event sink write failed", "event", name, "error", err)
		}
	}
	l.logger.DebugContext(ctx, "event", "event", name, "data", data)
}

// Since returns a copy of the events recorded after the first n.
func (l *Log) Since(n int) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 || n > len(l.events) {
		n = len(l.events)
	}
	return append([]domain.Event(nil), l.events[n:]...)
}

// Events returns a copy of every recorded event.
func (l *Log) Events() []domain.Event {
	return l.Since(0)
}

func (l *Log) RunID() string {
	return l.runID
}
