package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Timer fires one-shot callbacks at absolute instants. Callbacks run one at
// a time, in fire-time order; equal instants keep registration order.
type Timer interface {
	// At registers fn to run at the given instant. Instants in the past fire
	// as soon as possible. Calls after Stop are ignored.
	At(at time.Time, fn func())
	Start()
	// Stop discards pending callbacks and waits for the running one.
	Stop()
}

// maxWait bounds a single sleep so that a host suspend, which pauses the
// monotonic clock, delays a trigger by at most this much after resume.
const maxWait = 30 * time.Second

type trigger struct {
	at  time.Time
	seq uint64
	fn  func()
}

type triggerHeap []trigger

func (h triggerHeap) Len() int { return len(h) }
func (h triggerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h triggerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *triggerHeap) Push(x any)   { *h = append(*h, x.(trigger)) }
func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = trigger{}
	*h = old[:n-1]
	return t
}

// EventLoop is the production Timer: a single goroutine over a min-heap of
// triggers.
type EventLoop struct {
	clock Clock

	mu      sync.Mutex
	pending triggerHeap
	seq     uint64
	started bool
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewEventLoop(clock Clock) *EventLoop {
	return &EventLoop{
		clock: clock,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *EventLoop) At(at time.Time, fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.seq++
	heap.Push(&l.pending, trigger{at: at, seq: l.seq, fn: fn})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) Start() {
	l.startOnce.Do(func() {
		l.mu.Lock()
		l.started = true
		l.mu.Unlock()
		go l.run()
	})
}

func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.pending = nil
		started := l.started
		l.mu.Unlock()

		close(l.quit)
		if started {
			<-l.done
		}
	})
}

func (l *EventLoop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.quit:
			return
		default:
		}

		fn, wait := l.next()
		if fn != nil {
			fn()
			continue
		}

		var (
			t       *time.Timer
			timeout <-chan time.Time
		)
		if wait > 0 {
			t = time.NewTimer(wait)
			timeout = t.C
		}

		select {
		case <-l.quit:
		case <-l.wake:
		case <-timeout:
		}
		if t != nil {
			t.Stop()
		}
	}
}

// next pops the head trigger if it is due. Otherwise it returns how long to
// sleep, or 0 when nothing is pending.
func (l *EventLoop) next() (func(), time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil, 0
	}
	d := l.pending[0].at.Sub(l.clock.Now().Round(0))
	if d <= 0 {
		t := heap.Pop(&l.pending).(trigger)
		return t.fn, 0
	}
	return nil, min(d, maxWait)
}
