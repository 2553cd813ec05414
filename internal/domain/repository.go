package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppRepository persists registered apps and their credential hashes.
type AppRepository interface {
	// Create stores a new app. Returns ErrDuplicateOwner if the owner email is taken.
	Create(ctx context.Context, app App) error

	FindByID(ctx context.Context, id uuid.UUID) (App, error)

	// FindByEmail returns the app for an owner email, revoked or not.
	FindByEmail(ctx context.Context, email string) (App, error)

	// ListActive returns every app that has not been revoked.
	ListActive(ctx context.Context) ([]App, error)

	// Revoke marks the app revoked in a single write and returns the updated record.
	Revoke(ctx context.Context, id uuid.UUID) (App, error)

	// ReplaceCredential swaps the credential hash and clears the revoked flag
	// in a single write.
	ReplaceCredential(ctx context.Context, id uuid.UUID, hash []byte) (App, error)
}

// EventRepository is the append-only event log and the aggregation engine over it.
type EventRepository interface {
	Insert(ctx context.Context, event Event) error
	InsertBatch(ctx context.Context, events []Event) error

	// Summarize groups the app's events by name, sorted by name ascending.
	Summarize(ctx context.Context, appID uuid.UUID, filter SummaryFilter) ([]EventSummary, error)

	// UserStats returns ErrNotFound when the user has no events in the app.
	UserStats(ctx context.Context, appID uuid.UUID, userID string, filter UserStatsFilter) (UserStats, error)
}

// ResultCache is a best-effort TTL store for serialized query results.
// Implementations must treat every failure as a miss on Get.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
