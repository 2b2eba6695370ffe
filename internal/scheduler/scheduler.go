package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/events"
	"github.com/ErlanBelekov/longrun-driver/internal/health"
	"github.com/ErlanBelekov/longrun-driver/internal/metrics"
)

var ErrAlreadyRunning = errors.New("scheduler is already running")

const (
	defaultStartDelay   = 5 * time.Second
	defaultPollInterval = 10 * time.Second
)

// Job is the unit of work dispatched at each fire time. offsetHours is set
// for plan entries, payload is nil for interval entries.
type Job interface {
	Run(ctx context.Context, offsetHours *float64, payload *domain.SymptomPayload) error
}

type JobFunc func(ctx context.Context, offsetHours *float64, payload *domain.SymptomPayload) error

func (f JobFunc) Run(ctx context.Context, offsetHours *float64, payload *domain.SymptomPayload) error {
	return f(ctx, offsetHours, payload)
}

// HealthChecker is satisfied by *health.Monitor.
type HealthChecker interface {
	EnsureHealthy(ctx context.Context, s health.Session) health.Report
}

type Config struct {
	Duration         time.Duration
	Interval         time.Duration // interval mode only
	StartImmediately bool
	StartDelay       time.Duration // delay of step 0 when StartImmediately is set
	PollInterval     time.Duration // how often Run re-checks the window end
	Plan             []domain.PlanItem
}

func (c Config) Mode() domain.Mode {
	if len(c.Plan) > 0 {
		return domain.ModePlan
	}
	return domain.ModeInterval
}

func (c Config) validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidWindow)
	}
	if c.Mode() == domain.ModeInterval && c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive when no plan is configured", domain.ErrInvalidPlan)
	}
	return nil
}

// Snapshot is a point-in-time view of a run, safe to hand to other
// goroutines.
type Snapshot struct {
	Running    bool       `json:"running"`
	Mode       string     `json:"mode"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Step       int        `json:"step"`
	NextFireAt *time.Time `json:"next_fire_at,omitempty"`
	Dispatched int        `json:"dispatched"`
	Failed     int        `json:"failed"`
	Degraded   int        `json:"degraded"`
	LastError  string     `json:"last_error,omitempty"`
}

// Scheduler dispatches a Job across a fixed run window, one job at a time,
// with a session health check before each dispatch.
type Scheduler struct {
	cfg      Config
	monitor  HealthChecker
	recorder events.Recorder
	logger   *slog.Logger
	clock    Clock
	timer    Timer

	// set for the duration of Run
	job     Job
	session health.Session
	halted  chan struct{}
	halt    func()

	mu       sync.Mutex
	running  bool
	window   domain.RunWindow
	step     int         // interval mode: index of the pending or running entry
	pending  []time.Time // fire times registered but not yet dispatched, ascending
	stats    Snapshot
	stopping bool // set once the window closed or the run was cancelled
	finished bool
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithTimer replaces the event loop, e.g. with a synchronous test double.
func WithTimer(t Timer) Option { return func(s *Scheduler) { s.timer = t } }

func New(cfg Config, monitor HealthChecker, recorder events.Recorder, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = defaultStartDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	s := &Scheduler{
		cfg:      cfg,
		monitor:  monitor,
		recorder: recorder,
		logger:   logger.With("component", "scheduler"),
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = NewEventLoop(s.clock)
	}
	return s
}

// Run blocks until the run window has elapsed or ctx is cancelled, then stops
// the event loop and waits for the in-flight job. A nil session disables the
// health check. Job failures never end the run; the returned error is a
// configuration error or ctx.Err().
func (s *Scheduler) Run(ctx context.Context, job Job, session health.Session) error {
	if err := s.cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running || s.finished {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	window, err := domain.NewRunWindow(s.clock.Now(), s.cfg.Duration)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.running = true
	s.window = window
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.finished = true
		s.pending = nil
		s.mu.Unlock()
	}()

	s.job = job
	s.session = session
	s.halted = make(chan struct{})
	var once sync.Once
	s.halt = func() { once.Do(func() { close(s.halted) }) }

	mode := s.cfg.Mode()
	var kept, dropped []domain.ScheduleEntry
	if mode == domain.ModePlan {
		if kept, dropped, err = ExpandPlan(window, s.cfg.Plan); err != nil {
			return err
		}
	}

	started := map[string]any{
		"mode":           string(mode),
		"duration_hours": s.cfg.Duration.Hours(),
		"start_time":     window.Start.Format(time.RFC3339),
		"end_time":       window.End.Format(time.RFC3339),
		"warning":        "host must remain powered on and awake; disable sleep/suspend/hibernation",
	}
	if mode == domain.ModeInterval {
		started["interval_hours"] = s.cfg.Interval.Hours()
		started["start_immediately"] = s.cfg.StartImmediately
	}
	s.recorder.Record(ctx, domain.EventSchedulerStarted, started)
	s.logger.InfoContext(ctx, "scheduler started", "mode", mode, "start", window.Start, "end", window.End)
	metrics.RunStartTime.Set(float64(window.Start.Unix()))
	metrics.RunEndTime.Set(float64(window.End.Unix()))

	switch mode {
	case domain.ModePlan:
		s.registerPlan(ctx, window, kept, dropped)
	default:
		s.registerFirstStep(ctx, window)
	}

	s.timer.Start()
	waitErr := s.wait(ctx, window.End)
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.timer.Stop()

	snap := s.Snapshot()
	done := map[string]any{
		"dispatched": snap.Dispatched,
		"failed":     snap.Failed,
		"degraded":   snap.Degraded,
	}
	if waitErr != nil {
		done["error"] = waitErr.Error()
		s.recorder.Record(ctx, domain.EventRunAborted, done)
		s.logger.WarnContext(ctx, "run aborted", "error", waitErr)
		return waitErr
	}
	s.recorder.Record(ctx, domain.EventRunComplete, done)
	s.logger.InfoContext(ctx, "run complete", "dispatched", snap.Dispatched, "failed", snap.Failed)
	return nil
}

func (s *Scheduler) registerPlan(ctx context.Context, w domain.RunWindow, kept, dropped []domain.ScheduleEntry) {
	for _, e := range dropped {
		attrs := e.Attrs()
		attrs["reason"] = "outside run window"
		s.recorder.Record(ctx, domain.EventEntryDropped, attrs)
		s.logger.InfoContext(ctx, "plan entry outside run window, dropped", "at_hour", *e.OffsetHours)
		metrics.EntriesDroppedTotal.Inc()
	}
	for _, e := range kept {
		s.register(ctx, e)
	}

	// Sentinel: registered last so entries at exactly End still run first.
	s.timer.At(w.End, s.halt)
}

func (s *Scheduler) registerFirstStep(ctx context.Context, w domain.RunWindow) {
	if !s.cfg.StartImmediately {
		s.advance(ctx)
		return
	}

	idx := 0
	e := domain.ScheduleEntry{
		Kind:   domain.EntryIntervalImmediate,
		FireAt: s.clock.Now().Round(0).Add(s.cfg.StartDelay),
		Index:  &idx,
	}
	if !e.FireAt.Before(w.End) {
		s.exhausted(ctx, e)
		return
	}
	s.register(ctx, e)
}

// advance moves the step counter forward after the current job completed and
// registers the next anchored entry, if it still falls inside the window.
func (s *Scheduler) advance(ctx context.Context) {
	s.mu.Lock()
	s.step++
	k := s.step
	w := s.window
	stopping := s.stopping
	s.mu.Unlock()

	e, ok := intervalEntry(w, s.cfg.Interval, k)
	// A job that overran the window end, or a run being torn down, leaves
	// nothing to register: the loop would never fire it.
	if !ok || stopping || ctx.Err() != nil || !s.clock.Now().Before(w.End) {
		s.exhausted(ctx, e)
		return
	}
	s.register(ctx, e)
}

func (s *Scheduler) exhausted(ctx context.Context, e domain.ScheduleEntry) {
	s.mu.Lock()
	step := s.step
	s.mu.Unlock()

	s.recorder.Record(ctx, domain.EventIntervalExhausted, map[string]any{
		"index":  step,
		"run_at": e.FireAt.Format(time.RFC3339),
	})
	s.logger.InfoContext(ctx, "no further steps inside the run window", "step", step)
}

func (s *Scheduler) register(ctx context.Context, e domain.ScheduleEntry) {
	s.mu.Lock()
	s.pending = append(s.pending, e.FireAt)
	s.mu.Unlock()

	s.recorder.Record(ctx, domain.EventEntryScheduled, e.Attrs())
	metrics.EntriesScheduledTotal.WithLabelValues(string(e.Kind)).Inc()
	s.timer.At(e.FireAt, s.fire(ctx, e))
}

// fire binds one entry value to its trigger.
func (s *Scheduler) fire(ctx context.Context, e domain.ScheduleEntry) func() {
	return func() {
		s.dispatch(ctx, e)
		if e.Kind != domain.EntryPlan {
			s.advance(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, e domain.ScheduleEntry) {
	now := s.clock.Now()
	metrics.FireLateness.Observe(max(now.Sub(e.FireAt).Seconds(), 0))

	s.mu.Lock()
	for i, at := range s.pending {
		if at.Equal(e.FireAt) {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.session != nil && s.monitor != nil {
		report := s.monitor.EnsureHealthy(ctx, s.session)
		if report.Outcome == domain.OutcomeUnrecoverable {
			s.mu.Lock()
			s.stats.Degraded++
			s.mu.Unlock()
			attrs := e.Attrs()
			attrs["error"] = domain.ErrSessionUnrecoverable.Error()
			s.recorder.Record(ctx, domain.EventJobDispatchDegraded, attrs)
			s.logger.ErrorContext(ctx, "dispatching job on an unrecoverable session", "run_at", e.FireAt)
		}
	}

	s.recorder.Record(ctx, domain.EventJobStarted, e.Attrs())
	metrics.JobsInFlight.Inc()
	err := s.runJob(ctx, e)
	metrics.JobsInFlight.Dec()
	elapsed := s.clock.Now().Sub(now)

	s.mu.Lock()
	s.stats.Dispatched++
	if err != nil {
		s.stats.Failed++
		s.stats.LastError = err.Error()
	}
	s.mu.Unlock()

	attrs := e.Attrs()
	attrs["elapsed_sec"] = elapsed.Round(100 * time.Millisecond).Seconds()
	if err != nil {
		attrs["error"] = err.Error()
		s.recorder.Record(ctx, domain.EventJobFailed, attrs)
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
		metrics.JobDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		s.logger.WarnContext(ctx, "job failed", "run_at", e.FireAt, "error", err)
		return
	}
	s.recorder.Record(ctx, domain.EventJobDone, attrs)
	metrics.JobsCompletedTotal.WithLabelValues("success").Inc()
	metrics.JobDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	s.logger.InfoContext(ctx, "job completed", "run_at", e.FireAt, "elapsed", elapsed)
}

// runJob converts a panicking job into an error so the loop survives it.
func (s *Scheduler) runJob(ctx context.Context, e domain.ScheduleEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.job.Run(ctx, e.OffsetHours, e.Payload)
}

// wait polls the window end. The plan sentinel may end it early.
func (s *Scheduler) wait(ctx context.Context, end time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.clock.Now().Before(end) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.halted:
			return nil
		case <-s.clock.After(s.cfg.PollInterval):
		}
	}
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.stats
	snap.Running = s.running
	snap.Mode = string(s.cfg.Mode())
	snap.Start = s.window.Start
	snap.End = s.window.End
	snap.Step = s.step
	if len(s.pending) > 0 {
		next := s.pending[0]
		snap.NextFireAt = &next
	}
	return snap
}
