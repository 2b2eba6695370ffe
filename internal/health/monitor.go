package health

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/events"
	"github.com/prometheus/client_golang/prometheus"
)

// Session is the automation session the monitor observes and commands. Each
// operation may fail independently.
type Session interface {
	IsAlive(ctx context.Context) (bool, error)
	SoftReset(ctx context.Context) error
	ForceRelaunch(ctx context.Context) error
	KillAndRelaunch(ctx context.Context) error
}

// Report describes one EnsureHealthy call.
type Report struct {
	Outcome  domain.HealthOutcome
	CheckErr error // error from the initial aliveness query, if any
	Attempts []domain.RecoveryAttempt
}

// Monitor checks the session before each job and escalates through the
// recovery steps when it is dead. It keeps no decision state between calls.
type Monitor struct {
	recorder events.Recorder
	logger   *slog.Logger
	settle   map[domain.RecoveryStep]time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	up       prometheus.Gauge
	attempts *prometheus.CounterVec
}

type MonitorOption func(*Monitor)

// WithSettle overrides the idle time after each recovery step.
func WithSettle(soft, relaunch, kill time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.settle = map[domain.RecoveryStep]time.Duration{
			domain.StepSoftReset:       soft,
			domain.StepForceRelaunch:   relaunch,
			domain.StepKillAndRelaunch: kill,
		}
	}
}

// WithSleep replaces the idle function, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) MonitorOption {
	return func(m *Monitor) { m.sleep = fn }
}

// NewMonitor creates a monitor and registers its Prometheus collectors.
func NewMonitor(recorder events.Recorder, logger *slog.Logger, reg prometheus.Registerer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		recorder: recorder,
		logger:   logger.With("component", "session_monitor"),
		sleep:    idle,
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "longrun",
			Name:      "session_up",
			Help:      "Whether the automation session answered the last check. 1 = alive, 0 = dead.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "longrun",
			Name:      "recovery_attempts_total",
			Help:      "Recovery steps attempted, by step and by whether the session was alive afterwards.",
		}, []string{"step", "result"}),
	}
	WithSettle(1*time.Second, 1500*time.Millisecond, 2*time.Second)(m)
	for _, opt := range opts {
		opt(m)
	}
	reg.MustRegister(m.up, m.attempts)
	return m
}

// EnsureHealthy returns OutcomeOK for a live session. For a dead one it runs
// the recovery steps in order and stops at the first step after which the
// session answers again. Only the re-check decides; a step reporting success
// proves nothing.
func (m *Monitor) EnsureHealthy(ctx context.Context, s Session) Report {
	alive, err := m.check(ctx, s)
	if alive {
		m.up.Set(1)
		return Report{Outcome: domain.OutcomeOK}
	}
	m.up.Set(0)

	report := Report{CheckErr: err}
	failed := map[string]any{}
	if err != nil {
		failed["error"] = err.Error()
	}
	m.recorder.Record(ctx, domain.EventSessionCheckFailed, failed)
	m.logger.WarnContext(ctx, "session check failed, starting recovery", "error", err)

	for _, step := range domain.RecoverySteps {
		attempt := m.attempt(ctx, s, step)
		report.Attempts = append(report.Attempts, attempt)

		if attempt.Alive {
			m.up.Set(1)
			m.recorder.Record(ctx, domain.EventSessionRecovered, map[string]any{"recovery_step": int(step)})
			m.logger.InfoContext(ctx, "session recovered", "step", step.String())
			report.Outcome = domain.OutcomeRecovered
			return report
		}
	}

	m.recorder.Record(ctx, domain.EventSessionRecoveryFailed, map[string]any{"tried_steps": len(report.Attempts)})
	m.logger.ErrorContext(ctx, "session recovery failed", "tried_steps", len(report.Attempts))
	report.Outcome = domain.OutcomeUnrecoverable
	return report
}

func (m *Monitor) attempt(ctx context.Context, s Session, step domain.RecoveryStep) domain.RecoveryAttempt {
	m.recorder.Record(ctx, step.EventName(), map[string]any{"action": step.String()})

	stepErr := m.run(ctx, s, step)
	if stepErr != nil {
		m.recorder.Record(ctx, domain.EventRecoveryStepError, map[string]any{
			"step":  int(step),
			"error": stepErr.Error(),
		})
		m.logger.WarnContext(ctx, "recovery step failed", "step", step.String(), "error", stepErr)
	}

	if err := m.sleep(ctx, m.settle[step]); err != nil {
		m.logger.WarnContext(ctx, "recovery settle interrupted", "step", step.String(), "error", err)
	}

	alive, checkErr := m.check(ctx, s)
	result := "dead"
	if alive {
		result = "alive"
	} else if checkErr != nil {
		m.logger.DebugContext(ctx, "session still dead after recovery step", "step", step.String(), "error", checkErr)
	}
	m.attempts.WithLabelValues(strconv.Itoa(int(step)), result).Inc()

	return domain.RecoveryAttempt{Step: step, Err: stepErr, Alive: alive}
}

func (m *Monitor) run(ctx context.Context, s Session, step domain.RecoveryStep) error {
	switch step {
	case domain.StepSoftReset:
		return s.SoftReset(ctx)
	case domain.StepForceRelaunch:
		return s.ForceRelaunch(ctx)
	case domain.StepKillAndRelaunch:
		return s.KillAndRelaunch(ctx)
	default:
		return fmt.Errorf("unknown recovery step %d", int(step))
	}
}

func (m *Monitor) check(ctx context.Context, s Session) (bool, error) {
	alive, err := s.IsAlive(ctx)
	if err != nil {
		return false, err
	}
	return alive, nil
}

func idle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
