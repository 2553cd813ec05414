// Package memory provides in-process implementations of the repositories for
// local runs (STORE_DRIVER=memory) and tests. They follow the same contracts
// as the PostgreSQL implementations.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/domain"
)

// AppRepository is a mutex-guarded map of apps.
type AppRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]domain.App
	byEmail map[string]uuid.UUID
}

// NewAppRepository creates an empty in-memory app repository.
func NewAppRepository() *AppRepository {
	return &AppRepository{
		byID:    make(map[uuid.UUID]domain.App),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *AppRepository) Create(ctx context.Context, app domain.App) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[app.OwnerEmail]; exists {
		return domain.ErrDuplicateOwner
	}
	r.byID[app.ID] = cloneApp(app)
	r.byEmail[app.OwnerEmail] = app.ID
	return nil
}

func (r *AppRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.byID[id]
	if !ok {
		return domain.App{}, domain.ErrNotFound
	}
	return cloneApp(app), nil
}

func (r *AppRepository) FindByEmail(ctx context.Context, email string) (domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return domain.App{}, domain.ErrNotFound
	}
	return cloneApp(r.byID[id]), nil
}

// ListActive returns non-revoked apps ordered by creation time.
func (r *AppRepository) ListActive(ctx context.Context) ([]domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apps := make([]domain.App, 0, len(r.byID))
	for _, app := range r.byID {
		if !app.Revoked {
			apps = append(apps, cloneApp(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID.String() < apps[j].ID.String()
		}
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	return apps, nil
}

func (r *AppRepository) Revoke(ctx context.Context, id uuid.UUID) (domain.App, error) {
	return r.update(id, func(app *domain.App) {
		app.Revoked = true
	})
}

func (r *AppRepository) ReplaceCredential(ctx context.Context, id uuid.UUID, hash []byte) (domain.App, error) {
	return r.update(id, func(app *domain.App) {
		app.CredentialHash = append([]byte(nil), hash...)
		app.Revoked = false
	})
}

func (r *AppRepository) update(id uuid.UUID, fn func(app *domain.App)) (domain.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.byID[id]
	if !ok {
		return domain.App{}, domain.ErrNotFound
	}
	fn(&app)
	r.byID[id] = app
	return cloneApp(app), nil
}

func cloneApp(app domain.App) domain.App {
	app.CredentialHash = append([]byte(nil), app.CredentialHash...)
	return app
}
