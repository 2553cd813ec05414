package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/adapter/api/middleware"
	"github.com/V4T54L/event-analytics/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockCollectUseCase is a mock implementation of CollectUseCase.
type MockCollectUseCase struct {
	Err     error
	AppID   uuid.UUID
	Single  []domain.Event
	Batches [][]domain.Event
}

func (m *MockCollectUseCase) Collect(ctx context.Context, appID uuid.UUID, event *domain.Event) error {
	m.AppID = appID
	if m.Err != nil {
		return m.Err
	}
	m.Single = append(m.Single, *event)
	return nil
}

func (m *MockCollectUseCase) CollectBatch(ctx context.Context, appID uuid.UUID, events []domain.Event) error {
	m.AppID = appID
	if m.Err != nil {
		return m.Err
	}
	m.Batches = append(m.Batches, events)
	return nil
}

// MockCredentialUseCase is a mock implementation of CredentialUseCase.
type MockCredentialUseCase struct {
	IssueFunc      func(ctx context.Context, in domain.NewApp) (domain.App, string, error)
	LookupFunc     func(ctx context.Context, email string) (domain.App, error)
	RevokeFunc     func(ctx context.Context, id uuid.UUID) (domain.App, error)
	RegenerateFunc func(ctx context.Context, id uuid.UUID) (domain.App, string, error)
}

func (m *MockCredentialUseCase) Issue(ctx context.Context, in domain.NewApp) (domain.App, string, error) {
	return m.IssueFunc(ctx, in)
}

func (m *MockCredentialUseCase) LookupByEmail(ctx context.Context, email string) (domain.App, error) {
	return m.LookupFunc(ctx, email)
}

func (m *MockCredentialUseCase) Revoke(ctx context.Context, id uuid.UUID) (domain.App, error) {
	return m.RevokeFunc(ctx, id)
}

func (m *MockCredentialUseCase) Regenerate(ctx context.Context, id uuid.UUID) (domain.App, string, error) {
	return m.RegenerateFunc(ctx, id)
}

// MockAnalyticsUseCase is a mock implementation of AnalyticsUseCase.
type MockAnalyticsUseCase struct {
	Summaries     []domain.EventSummary
	Stats         domain.UserStats
	Cached        bool
	Err           error
	SummaryFilter domain.SummaryFilter
	StatsFilter   domain.UserStatsFilter
	UserID        string
}

func (m *MockAnalyticsUseCase) Summarize(ctx context.Context, appID uuid.UUID, filter domain.SummaryFilter) ([]domain.EventSummary, bool, error) {
	m.SummaryFilter = filter
	return m.Summaries, m.Cached, m.Err
}

func (m *MockAnalyticsUseCase) UserStats(ctx context.Context, appID uuid.UUID, userID string, filter domain.UserStatsFilter) (domain.UserStats, bool, error) {
	m.UserID = userID
	m.StatsFilter = filter
	return m.Stats, m.Cached, m.Err
}

// stubVerifier authenticates exactly one key.
type stubVerifier struct {
	key string
	app domain.App
}

func (s stubVerifier) Verify(ctx context.Context, key string) (domain.App, error) {
	if key != s.key {
		return domain.App{}, domain.ErrUnauthorized
	}
	return s.app, nil
}

// withApp runs h behind the tenant auth middleware for app.
func withApp(app domain.App, h http.Handler) http.Handler {
	return middleware.Auth(stubVerifier{key: "test-key", app: app}, discardLogger())(h)
}
