package events

import (
	"context"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/repository"
)

// RepositorySink persists events through an EventRepository.
type RepositorySink struct {
	repo repository.EventRepository
}

func NewRepositorySink(repo repository.EventRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Write(ctx context.Context, ev domain.Event) error {
	return s.repo.Append(ctx, ev)
}
