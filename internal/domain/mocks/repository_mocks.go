package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/domain"
)

// MockAppRepository is a mock implementation of domain.AppRepository that
// returns injected errors and records writes.
type MockAppRepository struct {
	mu          sync.Mutex
	Apps        []domain.App
	Created     []domain.App
	CreateErr   error
	FindErr     error
	ListErr     error
	UpdateErr   error
	ListCalls   int
	UpdateCalls int
}

func (m *MockAppRepository) Create(ctx context.Context, app domain.App) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Created = append(m.Created, app)
	m.Apps = append(m.Apps, app)
	return nil
}

func (m *MockAppRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return domain.App{}, m.FindErr
	}
	for _, app := range m.Apps {
		if app.ID == id {
			return app, nil
		}
	}
	return domain.App{}, domain.ErrNotFound
}

func (m *MockAppRepository) FindByEmail(ctx context.Context, email string) (domain.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return domain.App{}, m.FindErr
	}
	for _, app := range m.Apps {
		if app.OwnerEmail == email {
			return app, nil
		}
	}
	return domain.App{}, domain.ErrNotFound
}

func (m *MockAppRepository) ListActive(ctx context.Context) ([]domain.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var active []domain.App
	for _, app := range m.Apps {
		if !app.Revoked {
			active = append(active, app)
		}
	}
	return active, nil
}

func (m *MockAppRepository) Revoke(ctx context.Context, id uuid.UUID) (domain.App, error) {
	return m.update(id, func(app *domain.App) { app.Revoked = true })
}

func (m *MockAppRepository) ReplaceCredential(ctx context.Context, id uuid.UUID, hash []byte) (domain.App, error) {
	return m.update(id, func(app *domain.App) {
		app.CredentialHash = hash
		app.Revoked = false
	})
}

func (m *MockAppRepository) update(id uuid.UUID, fn func(app *domain.App)) (domain.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return domain.App{}, m.UpdateErr
	}
	for i := range m.Apps {
		if m.Apps[i].ID == id {
			fn(&m.Apps[i])
			return m.Apps[i], nil
		}
	}
	return domain.App{}, domain.ErrNotFound
}

// MockEventRepository is a mock implementation of domain.EventRepository.
// Query results are canned; writes are recorded.
type MockEventRepository struct {
	mu             sync.Mutex
	Inserted       []domain.Event
	Summaries      []domain.EventSummary
	Stats          domain.UserStats
	InsertErr      error
	SummarizeErr   error
	UserStatsErr   error
	SummarizeCalls int
	UserStatsCalls int
	LastAppID      uuid.UUID
	LastSummary    domain.SummaryFilter
}

func (m *MockEventRepository) Insert(ctx context.Context, event domain.Event) error {
	return m.InsertBatch(ctx, []domain.Event{event})
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.Inserted = append(m.Inserted, events...)
	return nil
}

func (m *MockEventRepository) Summarize(ctx context.Context, appID uuid.UUID, filter domain.SummaryFilter) ([]domain.EventSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummarizeCalls++
	m.LastAppID = appID
	m.LastSummary = filter
	if m.SummarizeErr != nil {
		return nil, m.SummarizeErr
	}
	return m.Summaries, nil
}

func (m *MockEventRepository) UserStats(ctx context.Context, appID uuid.UUID, userID string, filter domain.UserStatsFilter) (domain.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserStatsCalls++
	m.LastAppID = appID
	if m.UserStatsErr != nil {
		return domain.UserStats{}, m.UserStatsErr
	}
	return m.Stats, nil
}

// MockResultCache is an in-memory domain.ResultCache that can be switched
// into a failing mode.
type MockResultCache struct {
	mu       sync.Mutex
	Entries  map[string][]byte
	TTLs     map[string]time.Duration
	Fail     bool
	GetCalls int
	PutCalls int
}

func NewMockResultCache() *MockResultCache {
	return &MockResultCache{
		Entries: make(map[string][]byte),
		TTLs:    make(map[string]time.Duration),
	}
}

func (m *MockResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.Fail {
		return nil, false
	}
	v, ok := m.Entries[key]
	return v, ok
}

func (m *MockResultCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.Fail {
		return domain.ErrCacheUnavailable
	}
	m.Entries[key] = value
	m.TTLs[key] = ttl
	return nil
}

func (m *MockResultCache) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return domain.ErrCacheUnavailable
	}
	delete(m.Entries, key)
	delete(m.TTLs, key)
	return nil
}
