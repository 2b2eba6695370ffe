// Package workflow holds the UI flows run against the app under test:
// starting a measurement and injecting a symptom event.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/events"
	"github.com/ErlanBelekov/longrun-driver/internal/metrics"
	"github.com/ErlanBelekov/longrun-driver/internal/retry"
)

var ErrMeasurementNotRunning = errors.New("could not confirm measurement running (symptom button not visible)")

// UI is the subset of the device driver the flows need. *appium.Driver
// implements it.
type UI interface {
	BringToForeground(ctx context.Context) error
	Idle(ctx context.Context, d time.Duration) error
	IsVisible(ctx context.Context, texts []string, contains bool) bool
	Tap(ctx context.Context, texts []string, timeout time.Duration, contains bool) error
	Find(ctx context.Context, value string, timeout time.Duration, contains bool) (string, error)
	FindClass(ctx context.Context, class string, timeout time.Duration) (string, error)
	Click(ctx context.Context, elementID string) error
	IsChecked(ctx context.Context, elementID string) (bool, error)
	TypeInto(ctx context.Context, elementID, text string) error
	HideKeyboard(ctx context.Context) error
	Screenshot(ctx context.Context, name string) (string, error)
	Logcat(ctx context.Context, name string) (string, error)
}

type Runner struct {
	ui       UI
	sel      Selectors
	recorder events.Recorder
	logger   *slog.Logger
	retry    retry.Policy
	now      func() time.Time
}

type Option func(*Runner)

// WithRetry replaces the flow retry policy (3 tries, 3s apart).
func WithRetry(p retry.Policy) Option { return func(r *Runner) { r.retry = p } }

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func New(ui UI, sel Selectors, recorder events.Recorder, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		ui:       ui,
		sel:      sel,
		recorder: recorder,
		logger:   logger.With("component", "workflow"),
		now:      time.Now,
	}
	r.retry = retry.Policy{Tries: 3, Delay: 3 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// policy returns the flow retry policy labelled for op.
func (r *Runner) policy(op string) retry.Policy {
	p := r.retry
	onRetry := p.OnRetry
	p.OnRetry = func(attempt int, err error) {
		metrics.RetryAttemptsTotal.WithLabelValues(op).Inc()
		r.logger.Warn("flow failed, retrying", "operation", op, "attempt", attempt, "error", err)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return p
}
