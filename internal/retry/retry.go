// Package retry runs fallible operations a bounded number of times with a
// constant delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy describes how an operation is retried. The zero value runs the
// operation once.
type Policy struct {
	Tries int
	Delay time.Duration

	// Sleep waits between attempts. Nil means a context-aware time.Timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do runs op until it succeeds or Tries attempts have failed, then returns
// the error of the last attempt. No delay follows the final attempt.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	tries := max(p.Tries, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var last error
	for attempt := 1; attempt <= tries; attempt++ {
		if last = op(ctx); last == nil {
			return nil
		}
		if attempt == tries {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, last)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return errors.Join(fmt.Errorf("retry interrupted after %d attempts: %w", attempt, err), last)
		}
	}
	return last
}

// Wrap returns op decorated with p.
func (p Policy) Wrap(op func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return p.Do(ctx, op)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
