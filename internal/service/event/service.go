package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/internal/repository"
)

// Service enqueues domain events into the outbox; the worker publishes them
// to the broker after commit.
type Service struct {
	repo repository.OutboxRepository
}

func NewService(repo repository.OutboxRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return s.repo.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   raw,
	})
}
