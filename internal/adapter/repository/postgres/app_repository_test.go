package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/V4T54L/event-analytics/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var appRowColumns = []string{"id", "name", "owner_email", "api_key_hash", "revoked", "created_at", "expires_at"}

func TestAppRepository_Create(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	app := domain.App{
		ID:             uuid.New(),
		Name:           "Acme",
		OwnerEmail:     "acme@x.com",
		CredentialHash: []byte("$2a$04$hash"),
		CreatedAt:      now,
		ExpiresAt:      now.AddDate(1, 0, 0),
	}

	tests := []struct {
		name    string
		execErr error
		wantErr error
	}{
		{name: "Success"},
		{name: "Duplicate owner", execErr: &pq.Error{Code: "23505", Constraint: "uq_apps_owner_email"}, wantErr: domain.ErrDuplicateOwner},
		{name: "Store failure", execErr: errors.New("connection refused"), wantErr: domain.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewAppRepository(db, testLogger(), time.Second)

			exp := mock.ExpectExec(`INSERT INTO apps`).
				WithArgs(app.ID, app.Name, app.OwnerEmail, string(app.CredentialHash), false, app.CreatedAt, app.ExpiresAt)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := repo.Create(context.Background(), app)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestAppRepository_FindByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppRepository(db, testLogger(), time.Second)
	id := uuid.New()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM apps WHERE owner_email = \$1`).
		WithArgs("acme@x.com").
		WillReturnRows(sqlmock.NewRows(appRowColumns).
			AddRow(id.String(), "Acme", "acme@x.com", "$2a$04$hash", true, created, created.AddDate(1, 0, 0)))

	app, err := repo.FindByEmail(context.Background(), "acme@x.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if app.ID != id || !app.Revoked || string(app.CredentialHash) != "$2a$04$hash" {
		t.Errorf("unexpected app: %+v", app)
	}

	mock.ExpectQuery(`SELECT (.+) FROM apps WHERE owner_email = \$1`).
		WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows(appRowColumns))

	if _, err := repo.FindByEmail(context.Background(), "nobody@x.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppRepository_ListActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppRepository(db, testLogger(), time.Second)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM apps WHERE revoked = FALSE`).
		WillReturnRows(sqlmock.NewRows(appRowColumns).
			AddRow(uuid.NewString(), "A", "a@x.com", "h1", false, created, created).
			AddRow(uuid.NewString(), "B", "b@x.com", "h2", false, created, created))

	apps, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(apps))
	}

	mock.ExpectQuery(`SELECT (.+) FROM apps WHERE revoked = FALSE`).
		WillReturnError(sql.ErrConnDone)

	if _, err := repo.ListActive(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAppRepository_RevokeAndReplace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppRepository(db, testLogger(), time.Second)
	id := uuid.New()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE apps SET revoked = TRUE WHERE id = \$1 RETURNING`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(appRowColumns).
			AddRow(id.String(), "Acme", "acme@x.com", "old", true, created, created))

	app, err := repo.Revoke(context.Background(), id)
	if err != nil {
		t.Fatalf("Revoke: expected no error, got %v", err)
	}
	if !app.Revoked {
		t.Error("Revoke: expected revoked app")
	}

	mock.ExpectQuery(`UPDATE apps SET api_key_hash = \$1, revoked = FALSE WHERE id = \$2 RETURNING`).
		WithArgs("new", id).
		WillReturnRows(sqlmock.NewRows(appRowColumns).
			AddRow(id.String(), "Acme", "acme@x.com", "new", false, created, created))

	app, err = repo.ReplaceCredential(context.Background(), id, []byte("new"))
	if err != nil {
		t.Fatalf("ReplaceCredential: expected no error, got %v", err)
	}
	if app.Revoked || string(app.CredentialHash) != "new" {
		t.Errorf("ReplaceCredential: unexpected app %+v", app)
	}

	missing := uuid.New()
	mock.ExpectQuery(`UPDATE apps SET revoked = TRUE`).
		WithArgs(missing).
		WillReturnRows(sqlmock.NewRows(appRowColumns))

	if _, err := repo.Revoke(context.Background(), missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
