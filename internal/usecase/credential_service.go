package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/domain"
	"github.com/V4T54L/event-analytics/internal/pkg/apikey"
	"github.com/V4T54L/event-analytics/internal/pkg/tracing"
)

// CredentialService issues, verifies, revokes and regenerates API keys.
//
// Verify compares the presented key against the bcrypt hash of every active
// app, so its cost grows linearly with the number of active apps. Plaintext
// keys are returned once and never stored.
type CredentialService struct {
	apps    domain.AppRepository
	logger  *slog.Logger
	metrics *metrics.Metrics
	expiry  time.Duration
	cost    int
	now     func() time.Time
}

// NewCredentialService creates a CredentialService. m may be nil.
func NewCredentialService(apps domain.AppRepository, logger *slog.Logger, m *metrics.Metrics, expiry time.Duration, cost int) *CredentialService {
	if cost == 0 {
		cost = apikey.DefaultCost
	}
	return &CredentialService{
		apps:    apps,
		logger:  logger.With("component", "credential_service"),
		metrics: m,
		expiry:  expiry,
		cost:    cost,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue registers a new app and returns it with its plaintext key.
// An owner email that already has an app, revoked or not, yields
// domain.ErrDuplicateOwner.
func (s *CredentialService) Issue(ctx context.Context, in domain.NewApp) (app domain.App, key string, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.credential.issue")
	defer func() { endSpan(span, err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.OwnerEmail = strings.TrimSpace(in.OwnerEmail)
	if in.Name == "" || in.OwnerEmail == "" {
		return domain.App{}, "", fmt.Errorf("issue: name and owner email are required: %w", domain.ErrValidation)
	}

	_, err = s.apps.FindByEmail(ctx, in.OwnerEmail)
	switch {
	case err == nil:
		return domain.App{}, "", domain.ErrDuplicateOwner
	case !errors.Is(err, domain.ErrNotFound):
		return domain.App{}, "", fmt.Errorf("issue: %w", err)
	}

	key, hash, err := s.newKey()
	if err != nil {
		return domain.App{}, "", err
	}

	now := s.now()
	app = domain.App{
		ID:             uuid.New(),
		Name:           in.Name,
		OwnerEmail:     in.OwnerEmail,
		CredentialHash: hash,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.expiry),
	}
	if err = s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, domain.ErrDuplicateOwner) {
			return domain.App{}, "", err
		}
		return domain.App{}, "", fmt.Errorf("issue: %w", err)
	}

	span.SetAttributes(attribute.String("app.id", app.ID.String()))
	s.logger.Info("app registered", "app_id", app.ID, "expires_at", app.ExpiresAt)
	return app, key, nil
}

// Verify resolves key to the active app it was issued for. Malformed,
// unknown, revoked and expired keys all return domain.ErrUnauthorized.
func (s *CredentialService) Verify(ctx context.Context, key string) (app domain.App, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.credential.verify")
	start := time.Now()
	defer func() {
		s.observeVerify(start, err)
		endSpan(span, err)
	}()

	if !apikey.WellFormed(key) {
		return domain.App{}, domain.ErrUnauthorized
	}

	active, err := s.apps.ListActive(ctx)
	if err != nil {
		return domain.App{}, fmt.Errorf("verify: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AuthActiveScanSize.Set(float64(len(active)))
	}
	span.SetAttributes(attribute.Int("apps.scanned", len(active)))

	for _, candidate := range active {
		if !apikey.Compare(candidate.CredentialHash, key) {
			continue
		}
		if candidate.Expired(s.now()) {
			s.logger.Debug("expired key presented", "app_id", candidate.ID)
			return domain.App{}, domain.ErrUnauthorized
		}
		span.SetAttributes(attribute.String("app.id", candidate.ID.String()))
		return candidate, nil
	}
	return domain.App{}, domain.ErrUnauthorized
}

// Revoke marks the app revoked. Its key stops verifying immediately.
// Revoking an already revoked app returns it unchanged.
func (s *CredentialService) Revoke(ctx context.Context, id uuid.UUID) (app domain.App, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.credential.revoke", attribute.String("app.id", id.String()))
	defer func() { endSpan(span, err) }()

	app, err = s.apps.FindByID(ctx, id)
	if err != nil {
		return domain.App{}, fmt.Errorf("revoke: %w", err)
	}
	if app.Revoked {
		return app, nil
	}

	app, err = s.apps.Revoke(ctx, id)
	if err != nil {
		return domain.App{}, fmt.Errorf("revoke: %w", err)
	}
	s.logger.Info("api key revoked", "app_id", id)
	return app, nil
}

// Regenerate replaces the app's key and clears the revoked flag. The previous
// key stops verifying as soon as the new hash is stored.
func (s *CredentialService) Regenerate(ctx context.Context, id uuid.UUID) (app domain.App, key string, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.credential.regenerate", attribute.String("app.id", id.String()))
	defer func() { endSpan(span, err) }()

	// Unknown ids fail before paying for a bcrypt hash.
	if _, err = s.apps.FindByID(ctx, id); err != nil {
		return domain.App{}, "", fmt.Errorf("regenerate: %w", err)
	}

	key, hash, err := s.newKey()
	if err != nil {
		return domain.App{}, "", err
	}
	app, err = s.apps.ReplaceCredential(ctx, id, hash)
	if err != nil {
		return domain.App{}, "", fmt.Errorf("regenerate: %w", err)
	}
	s.logger.Info("api key regenerated", "app_id", id)
	return app, key, nil
}

// LookupByEmail returns the app registered to email. The key is not
// recoverable and is never part of the result.
func (s *CredentialService) LookupByEmail(ctx context.Context, email string) (app domain.App, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.credential.lookup")
	defer func() { endSpan(span, err) }()

	app, err = s.apps.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return domain.App{}, fmt.Errorf("lookup: %w", err)
	}
	return app, nil
}

func (s *CredentialService) newKey() (string, []byte, error) {
	key, err := apikey.Generate()
	if err != nil {
		return "", nil, err
	}
	hash, err := apikey.Hash(key, s.cost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}
	return key, hash, nil
}

func (s *CredentialService) observeVerify(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.AuthVerifyDuration.Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		outcome = "unauthorized"
	case err != nil:
		outcome = "error"
	}
	s.metrics.AuthVerifications.WithLabelValues(outcome).Inc()
}
