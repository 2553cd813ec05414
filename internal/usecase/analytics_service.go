package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/domain"
	"github.com/V4T54L/event-analytics/internal/pkg/tracing"
)

const (
	summaryCacheKind   = "summary"
	userStatsCacheKind = "user_stats"
)

// AnalyticsService answers aggregation queries, consulting the result cache
// first. Cache failures only ever cause a recomputation.
type AnalyticsService struct {
	events  domain.EventRepository
	cache   domain.ResultCache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAnalyticsService creates an AnalyticsService. m may be nil.
func NewAnalyticsService(events domain.EventRepository, cache domain.ResultCache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *AnalyticsService {
	return &AnalyticsService{
		events:  events,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With("component", "analytics_service"),
		metrics: m,
	}
}

// Summarize returns per-event-name aggregates for appID. The boolean reports
// whether the result was served from the cache.
func (s *AnalyticsService) Summarize(ctx context.Context, appID uuid.UUID, filter domain.SummaryFilter) (result []domain.EventSummary, cached bool, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.analytics.summarize", attribute.String("app.id", appID.String()))
	start := time.Now()
	defer func() {
		s.observe(summaryCacheKind, start, cached)
		span.SetAttributes(attribute.Bool("cache.hit", cached))
		endSpan(span, err)
	}()

	key := SummaryCacheKey(appID, filter)
	if s.fromCache(ctx, key, &result) {
		return result, true, nil
	}

	result, err = s.events.Summarize(ctx, appID, filter)
	if err != nil {
		return nil, false, fmt.Errorf("summarize: %w", err)
	}
	if result == nil {
		result = []domain.EventSummary{}
	}
	s.toCache(ctx, key, result)
	return result, false, nil
}

// UserStats returns the activity projection for one user within appID.
// domain.ErrNotFound is returned when the user has no matching events.
func (s *AnalyticsService) UserStats(ctx context.Context, appID uuid.UUID, userID string, filter domain.UserStatsFilter) (result domain.UserStats, cached bool, err error) {
	ctx, span := tracing.AddSpan(ctx, "usecase.analytics.user_stats", attribute.String("app.id", appID.String()))
	start := time.Now()
	defer func() {
		s.observe(userStatsCacheKind, start, cached)
		span.SetAttributes(attribute.Bool("cache.hit", cached))
		endSpan(span, err)
	}()

	key := UserStatsCacheKey(appID, userID, filter)
	if s.fromCache(ctx, key, &result) {
		return result, true, nil
	}

	result, err = s.events.UserStats(ctx, appID, userID, filter)
	if err != nil {
		return domain.UserStats{}, false, fmt.Errorf("user stats: %w", err)
	}
	s.toCache(ctx, key, result)
	return result, false, nil
}

func (s *AnalyticsService) fromCache(ctx context.Context, key string, dst any) bool {
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (s *AnalyticsService) toCache(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode result for cache", "key", key, "error", err)
		return
	}
	if err := s.cache.Put(ctx, key, raw, s.ttl); err != nil {
		s.logger.Debug("cache put skipped", "key", key, "error", err)
	}
}

func (s *AnalyticsService) observe(kind string, start time.Time, cached bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryDuration.WithLabelValues(kind, strconv.FormatBool(cached)).Observe(time.Since(start).Seconds())
}

// SummaryCacheKey builds the cache key for a Summarize query. Logically equal
// queries always produce the same key.
func SummaryCacheKey(appID uuid.UUID, filter domain.SummaryFilter) string {
	return cacheKey(summaryCacheKind, appID,
		"event", filter.EventName,
		"start", formatBound(filter.Start),
		"end", formatBound(filter.End),
	)
}

// UserStatsCacheKey builds the cache key for a UserStats query.
func UserStatsCacheKey(appID uuid.UUID, userID string, filter domain.UserStatsFilter) string {
	return cacheKey(userStatsCacheKind, appID,
		"user", userID,
		"start", formatBound(filter.Start),
		"end", formatBound(filter.End),
	)
}

// cacheKey renders kind:tenant:k1=v1&k2=v2 with pairs in the order given.
func cacheKey(kind string, appID uuid.UUID, pairs ...string) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(':')
	b.WriteString(appID.String())
	b.WriteByte(':')
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(pairs[i])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pairs[i+1]))
	}
	return b.String()
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
