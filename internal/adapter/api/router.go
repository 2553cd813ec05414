package api

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/V4T54L/event-analytics/internal/adapter/api/handler"
	"github.com/V4T54L/event-analytics/internal/adapter/api/middleware"
	"github.com/V4T54L/event-analytics/internal/adapter/api/response"
	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/pkg/config"
	"github.com/V4T54L/event-analytics/internal/usecase"
)

const (
	ServiceName = "event-analytics"
	Version     = "1.0.0"
)

// Limiters are the per-IP rate limiters shared by the routes. The caller owns
// their eviction loops.
type Limiters struct {
	Auth      *middleware.RateLimiter
	Analytics *middleware.RateLimiter
}

// NewLimiters builds the limiters described by cfg.
func NewLimiters(cfg *config.Config) Limiters {
	return Limiters{
		Auth:      middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.RateLimitWindow),
		Analytics: middleware.NewRateLimiter(cfg.AnalyticsRateLimit, cfg.RateLimitWindow),
	}
}

// NewRouter creates and configures the main HTTP router.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	limiters Limiters,
	creds *usecase.CredentialService,
	collect *usecase.CollectEventUseCase,
	analytics *usecase.AnalyticsService,
) http.Handler {
	mux := http.NewServeMux()

	// Handlers
	authHandler := handler.NewAuthHandler(creds, logger)
	collectHandler := handler.NewCollectHandler(collect, logger, cfg.MaxEventSize, m)
	analyticsHandler := handler.NewAnalyticsHandler(analytics, logger)

	// Middleware
	tenant := middleware.Auth(creds, logger)
	management := middleware.Management(creds, cfg.AdminToken, logger)
	authLimit := middleware.RateLimit("auth", limiters.Auth, "Too many authentication attempts", m, logger)
	analyticsLimit := middleware.RateLimit("analytics", limiters.Analytics, "Too many analytics requests", m, logger)

	// Key management
	mux.Handle("POST /api/auth/register", authLimit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/api-key", authLimit(management(http.HandlerFunc(authHandler.LookupKey))))
	mux.Handle("POST /api/auth/revoke", authLimit(management(http.HandlerFunc(authHandler.Revoke))))
	mux.Handle("POST /api/auth/regenerate", authLimit(management(http.HandlerFunc(authHandler.Regenerate))))

	// Analytics
	mux.Handle("POST /api/analytics/collect", tenant(analyticsLimit(collectHandler)))
	mux.Handle("GET /api/analytics/event-summary", tenant(http.HandlerFunc(analyticsHandler.EventSummary)))
	mux.Handle("GET /api/analytics/user-stats", tenant(http.HandlerFunc(analyticsHandler.UserStats)))

	// Health check
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "Unified Event Analytics API",
			"version":   Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, http.StatusOK, nil, "OK")
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusNotFound, "Route not found")
	})

	var h http.Handler = mux
	h = middleware.SecurityHeaders(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)
	return otelhttp.NewHandler(h, ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
