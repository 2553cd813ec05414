package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/adapter/api/middleware"
	"github.com/V4T54L/event-analytics/internal/adapter/api/response"
	"github.com/V4T54L/event-analytics/internal/domain"
)

// AnalyticsUseCase answers aggregation queries for an app.
type AnalyticsUseCase interface {
	Summarize(ctx context.Context, appID uuid.UUID, filter domain.SummaryFilter) ([]domain.EventSummary, bool, error)
	UserStats(ctx context.Context, appID uuid.UUID, userID string, filter domain.UserStatsFilter) (domain.UserStats, bool, error)
}

// AnalyticsHandler serves the read side of /api/analytics.
type AnalyticsHandler struct {
	analytics AnalyticsUseCase
	logger    *slog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analytics AnalyticsUseCase, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		logger:    logger.With("component", "analytics_handler"),
	}
}

// EventSummary handles GET /api/analytics/event-summary?event=&startDate=&endDate=.
func (h *AnalyticsHandler) EventSummary(w http.ResponseWriter, r *http.Request) {
	app, ok := middleware.AppFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusUnauthorized, "Invalid or expired API key")
		return
	}

	q := r.URL.Query()
	start, end, details := parseRange(q.Get("startDate"), q.Get("endDate"))
	if len(details) > 0 {
		response.Fail(w, http.StatusBadRequest, "Validation failed", details...)
		return
	}

	filter := domain.SummaryFilter{EventName: q.Get("event"), Start: start, End: end}
	summary, cached, err := h.analytics.Summarize(r.Context(), app.ID, filter)
	if err != nil {
		response.Error(w, h.logger, err, response.Messages{Failure: "Failed to retrieve event summary"})
		return
	}
	response.Query(w, summary, cached)
}

// UserStats handles GET /api/analytics/user-stats?userId=&startDate=&endDate=.
func (h *AnalyticsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	app, ok := middleware.AppFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusUnauthorized, "Invalid or expired API key")
		return
	}

	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		response.Fail(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}
	start, end, details := parseRange(q.Get("startDate"), q.Get("endDate"))
	if len(details) > 0 {
		response.Fail(w, http.StatusBadRequest, "Validation failed", details...)
		return
	}

	stats, cached, err := h.analytics.UserStats(r.Context(), app.ID, userID, domain.UserStatsFilter{Start: start, End: end})
	if err != nil {
		response.Error(w, h.logger, err, response.Messages{NotFound: "User not found", Failure: "Failed to retrieve user stats"})
		return
	}
	response.Query(w, stats, cached)
}

// parseRange reads optional inclusive bounds. Absent bounds stay nil.
func parseRange(startRaw, endRaw string) (start, end *time.Time, details []string) {
	parse := func(name, raw string) *time.Time {
		if raw == "" {
			return nil
		}
		t, err := parseTime(raw)
		if err != nil {
			details = append(details, fmt.Sprintf("%q must be an RFC 3339 timestamp or YYYY-MM-DD date", name))
			return nil
		}
		return &t
	}
	start = parse("startDate", startRaw)
	end = parse("endDate", endRaw)
	if start != nil && end != nil && start.After(*end) {
		details = append(details, `"startDate" must not be after "endDate"`)
	}
	return start, end, details
}
