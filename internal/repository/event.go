package repository

import (
	"context"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
)

// EventRepository is the durable store for a run's lifecycle events.
type EventRepository interface {
	// Append inserts one event. Events are never updated.
	Append(ctx context.Context, ev domain.Event) error

	// ListByRun returns a run's events ordered by time ASC.
	ListByRun(ctx context.Context, runID string, limit int) ([]domain.Event, error)
}
