package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Append(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO run_events (id, run_id, name, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.RunID, ev.Name, data, ev.Time,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListByRun(ctx context.Context, runID string, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, name, data, created_at
		FROM run_events
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		ev   domain.Event
		data []byte
	)
	if err := row.Scan(&ev.ID, &ev.RunID, &ev.Name, &data, &ev.Time); err != nil {
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal(data, &ev.Data); err != nil {
		return domain.Event{}, fmt.Errorf("decode event data: %w", err)
	}
	return ev, nil
}
