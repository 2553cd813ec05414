package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/adapter/pii"
	"github.com/V4T54L/event-analytics/internal/domain"
)

// CollectEventUseCase handles the business logic for collecting events.
type CollectEventUseCase struct {
	repo     domain.EventRepository
	redactor *pii.Redactor
	logger   *slog.Logger
	now      func() time.Time
}

// NewCollectEventUseCase creates a new CollectEventUseCase.
func NewCollectEventUseCase(repo domain.EventRepository, redactor *pii.Redactor, logger *slog.Logger) *CollectEventUseCase {
	return &CollectEventUseCase{
		repo:     repo,
		redactor: redactor,
		logger:   logger.With("component", "collect_event"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Collect enriches, redacts and stores a single event for appID.
func (uc *CollectEventUseCase) Collect(ctx context.Context, appID uuid.UUID, event *domain.Event) error {
	uc.prepare(appID, event, uc.now())

	if err := uc.repo.Insert(ctx, *event); err != nil {
		uc.logger.Error("failed to store event", "error", err, "event_id", event.ID, "app_id", appID)
		return fmt.Errorf("collect: %w", err)
	}
	return nil
}

// CollectBatch stores events for appID in a single write. Either all events
// are stored or none are.
func (uc *CollectEventUseCase) CollectBatch(ctx context.Context, appID uuid.UUID, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	now := uc.now()
	for i := range events {
		uc.prepare(appID, &events[i], now)
	}

	if err := uc.repo.InsertBatch(ctx, events); err != nil {
		uc.logger.Error("failed to store event batch", "error", err, "count", len(events), "app_id", appID)
		return fmt.Errorf("collect batch: %w", err)
	}
	return nil
}

// prepare stamps server-side fields. The owning app always comes from the
// authenticated credential, never from the payload.
func (uc *CollectEventUseCase) prepare(appID uuid.UUID, event *domain.Event, now time.Time) {
	event.ID = uuid.New()
	event.AppID = appID
	event.ReceivedAt = now
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	event.Timestamp = event.Timestamp.UTC()

	if err := uc.redactor.Redact(event); err != nil {
		// Non-fatal, the event is stored as received.
		uc.logger.Warn("failed to redact PII, proceeding with original metadata", "error", err, "event_id", event.ID)
	}
}
