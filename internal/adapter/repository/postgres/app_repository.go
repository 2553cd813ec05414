package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/V4T54L/event-analytics/internal/domain"
)

const appColumns = `id, name, owner_email, api_key_hash, revoked, created_at, expires_at`

// appRow represents the structure of the apps table.
type appRow struct {
	ID         uuid.UUID `db:"id"`
	Name       string    `db:"name"`
	OwnerEmail string    `db:"owner_email"`
	KeyHash    []byte    `db:"api_key_hash"`
	Revoked    bool      `db:"revoked"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

func (r appRow) toDomain() domain.App {
	return domain.App{
		ID:             r.ID,
		Name:           r.Name,
		OwnerEmail:     r.OwnerEmail,
		CredentialHash: r.KeyHash,
		Revoked:        r.Revoked,
		CreatedAt:      r.CreatedAt.UTC(),
		ExpiresAt:      r.ExpiresAt.UTC(),
	}
}

// AppRepository implements domain.AppRepository using PostgreSQL.
// Every call is bounded by the configured query timeout.
type AppRepository struct {
	db      *sqlx.DB
	logger  *slog.Logger
	timeout time.Duration
}

// NewAppRepository creates a new PostgreSQL app repository.
func NewAppRepository(db *sqlx.DB, logger *slog.Logger, timeout time.Duration) *AppRepository {
	return &AppRepository{
		db:      db,
		logger:  logger.With("component", "postgres_app_repository"),
		timeout: timeout,
	}
}

// Create inserts a new app. A unique violation on owner_email becomes
// domain.ErrDuplicateOwner.
func (r *AppRepository) Create(ctx context.Context, app domain.App) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
	INSERT INTO apps (id, name, owner_email, api_key_hash, revoked, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, q,
		app.ID, app.Name, app.OwnerEmail, string(app.CredentialHash), app.Revoked, app.CreatedAt, app.ExpiresAt)
	if err != nil {
		return r.fail("insert app", err)
	}
	return nil
}

func (r *AppRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.App, error) {
	return r.getOne(ctx, "find app by id", `SELECT `+appColumns+` FROM apps WHERE id = $1`, id)
}

// FindByEmail returns the app registered to email, including revoked apps.
func (r *AppRepository) FindByEmail(ctx context.Context, email string) (domain.App, error) {
	return r.getOne(ctx, "find app by email", `SELECT `+appColumns+` FROM apps WHERE owner_email = $1`, email)
}

// ListActive returns all non-revoked apps, oldest first.
func (r *AppRepository) ListActive(ctx context.Context) ([]domain.App, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var rows []appRow
	q := `SELECT ` + appColumns + ` FROM apps WHERE revoked = FALSE ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, r.fail("list active apps", err)
	}

	apps := make([]domain.App, len(rows))
	for i, row := range rows {
		apps[i] = row.toDomain()
	}
	return apps, nil
}

// Revoke sets revoked = TRUE in a single statement.
func (r *AppRepository) Revoke(ctx context.Context, id uuid.UUID) (domain.App, error) {
	return r.getOne(ctx, "revoke app",
		`UPDATE apps SET revoked = TRUE WHERE id = $1 RETURNING `+appColumns, id)
}

// ReplaceCredential swaps the hash and clears revoked in a single statement,
// so the old key stops verifying the moment it commits.
func (r *AppRepository) ReplaceCredential(ctx context.Context, id uuid.UUID, hash []byte) (domain.App, error) {
	return r.getOne(ctx, "replace app credential",
		`UPDATE apps SET api_key_hash = $1, revoked = FALSE WHERE id = $2 RETURNING `+appColumns, string(hash), id)
}

func (r *AppRepository) getOne(ctx context.Context, op, q string, args ...any) (domain.App, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row appRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		return domain.App{}, r.fail(op, err)
	}
	return row.toDomain(), nil
}

func (r *AppRepository) fail(op string, err error) error {
	err = classify(op, err)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		r.logger.Error("app store operation failed", "op", op, "error", err)
	}
	return err
}
