package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
	ErrInvalidWindow        = errors.New("invalid run window")
	ErrInvalidPlan          = errors.New("invalid symptom plan")
	ErrSessionUnrecoverable = errors.New("automation session unrecoverable")
)

// RunWindow is the fixed time span of a long run. It never changes once the
// run has begun.
type RunWindow struct {
	Start time.Time
	End   time.Time
}

// NewRunWindow anchors a window of length d at start. The monotonic clock
// reading is stripped so that every offset is computed on wall-clock time.
func NewRunWindow(start time.Time, d time.Duration) (RunWindow, error) {
	if d <= 0 {
		return RunWindow{}, fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidWindow, d)
	}
	start = start.Round(0)
	return RunWindow{Start: start, End: start.Add(d)}, nil
}

func (w RunWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside [Start, End].
func (w RunWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// At returns the instant h hours after Start.
func (w RunWindow) At(h float64) time.Time {
	return w.Start.Add(Hours(h))
}

// Hours converts a fractional hour count into a Duration.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
