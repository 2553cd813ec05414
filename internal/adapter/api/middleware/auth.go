package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/V4T54L/event-analytics/internal/adapter/api/response"
	"github.com/V4T54L/event-analytics/internal/domain"
)

const (
	APIKeyHeader     = "X-API-Key"
	AdminTokenHeader = "X-Admin-Token"
)

// Verifier resolves a presented API key to its app.
type Verifier interface {
	Verify(ctx context.Context, key string) (domain.App, error)
}

// Principal is the caller of a management endpoint: either a tenant acting on
// its own app, or the operator holding the admin token.
type Principal struct {
	App   domain.App
	Admin bool
}

// CanManage reports whether the principal may act on the given app.
func (p Principal) CanManage(appID string) bool {
	return p.Admin || p.App.ID.String() == appID
}

type ctxKey int

const (
	appKey ctxKey = iota
	principalKey
)

// AppFromContext returns the app authenticated by Auth.
func AppFromContext(ctx context.Context) (domain.App, bool) {
	app, ok := ctx.Value(appKey).(domain.App)
	return app, ok
}

// PrincipalFromContext returns the principal authenticated by Management.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Auth is a middleware factory that returns a new authentication middleware.
// It resolves the X-API-Key header to an app and stores it in the request context.
func Auth(v Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app, ok := authenticate(w, r, v, logger)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), appKey, app)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Management authenticates callers of the key management endpoints. A valid
// X-Admin-Token grants the admin principal; otherwise an X-API-Key is required.
// An empty adminToken disables the admin principal.
func Management(v Verifier, adminToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p Principal
			if token := r.Header.Get(AdminTokenHeader); token != "" {
				if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
					logger.Warn("invalid admin token", "remote_addr", r.RemoteAddr)
					response.Fail(w, http.StatusUnauthorized, "Invalid admin token")
					return
				}
				p.Admin = true
			} else {
				app, ok := authenticate(w, r, v, logger)
				if !ok {
					return
				}
				p.App = app
			}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, v Verifier, logger *slog.Logger) (domain.App, bool) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		logger.Warn("API key missing from request", "remote_addr", r.RemoteAddr)
		response.Fail(w, http.StatusUnauthorized, "API key is required in x-api-key header")
		return domain.App{}, false
	}

	app, err := v.Verify(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			logger.Warn("invalid API key provided", "remote_addr", r.RemoteAddr)
		}
		response.Error(w, logger, err, response.Messages{Failure: "Authentication failed"})
		return domain.App{}, false
	}
	return app, true
}
