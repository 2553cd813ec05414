package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/domain"
	"github.com/V4T54L/event-analytics/internal/domain/mocks"
)

func ptr(t time.Time) *time.Time { return &t }

func TestSummaryCacheKey(t *testing.T) {
	app := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sameInstant := start.In(time.FixedZone("IST", 5*3600+1800))

	base := domain.SummaryFilter{EventName: "page_view", Start: ptr(start)}

	t.Run("Identical queries produce identical keys", func(t *testing.T) {
		a := SummaryCacheKey(app, base)
		b := SummaryCacheKey(app, domain.SummaryFilter{EventName: "page_view", Start: ptr(sameInstant)})
		if a != b {
			t.Errorf("keys differ: %q vs %q", a, b)
		}
		want := "summary:7c9e6679-7425-40de-944b-e07fc1f90ae7:event=page_view&start=2025-01-01T00%3A00%3A00Z&end="
		if a != want {
			t.Errorf("key = %q, want %q", a, want)
		}
	})

	variants := []struct {
		name   string
		appID  uuid.UUID
		filter domain.SummaryFilter
	}{
		{"Different tenant", uuid.New(), base},
		{"Different event", app, domain.SummaryFilter{EventName: "click", Start: base.Start}},
		{"No event filter", app, domain.SummaryFilter{Start: base.Start}},
		{"Different start", app, domain.SummaryFilter{EventName: "page_view", Start: ptr(start.Add(time.Nanosecond))}},
		{"Start moved to end", app, domain.SummaryFilter{EventName: "page_view", End: base.Start}},
		{"Value containing separators", app, domain.SummaryFilter{EventName: "page_view&start=", Start: base.Start}},
	}
	baseKey := SummaryCacheKey(app, base)
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			if got := SummaryCacheKey(v.appID, v.filter); got == baseKey {
				t.Errorf("expected a different key, both were %q", got)
			}
		})
	}
}

func TestUserStatsCacheKey(t *testing.T) {
	app := uuid.New()
	a := UserStatsCacheKey(app, "u1", domain.UserStatsFilter{})
	if a != UserStatsCacheKey(app, "u1", domain.UserStatsFilter{}) {
		t.Error("expected stable key")
	}
	if a == UserStatsCacheKey(app, "u2", domain.UserStatsFilter{}) {
		t.Error("expected user to be part of the key")
	}
	if !strings.HasPrefix(a, "user_stats:"+app.String()+":") {
		t.Errorf("unexpected key %q", a)
	}
	if a == SummaryCacheKey(app, domain.SummaryFilter{}) {
		t.Error("expected query kinds to be distinguished")
	}
}

func TestAnalyticsService_Summarize(t *testing.T) {
	ctx := context.Background()
	app := uuid.New()
	summaries := []domain.EventSummary{{EventName: "page_view", Count: 2, UniqueUsers: 1, DeviceBreakdown: map[string]int64{"mobile": 2}}}

	t.Run("Miss then hit", func(t *testing.T) {
		repo := &mocks.MockEventRepository{Summaries: summaries}
		cache := mocks.NewMockResultCache()
		m := metrics.New(prometheus.NewRegistry())
		svc := NewAnalyticsService(repo, cache, 300*time.Second, discardLogger(), m)

		got, cached, err := svc.Summarize(ctx, app, domain.SummaryFilter{})
		if err != nil || cached {
			t.Fatalf("first call: cached=%v err=%v", cached, err)
		}
		if len(got) != 1 || got[0].Count != 2 {
			t.Fatalf("unexpected result %+v", got)
		}
		key := SummaryCacheKey(app, domain.SummaryFilter{})
		if cache.TTLs[key] != 300*time.Second {
			t.Errorf("expected entry with 300s TTL, got %v", cache.TTLs[key])
		}

		got, cached, err = svc.Summarize(ctx, app, domain.SummaryFilter{})
		if err != nil || !cached {
			t.Fatalf("second call: cached=%v err=%v", cached, err)
		}
		if got[0].DeviceBreakdown["mobile"] != 2 {
			t.Errorf("cached result lost data: %+v", got)
		}
		if repo.SummarizeCalls != 1 {
			t.Errorf("expected one store query, got %d", repo.SummarizeCalls)
		}
		if n := testutil.CollectAndCount(m.QueryDuration); n != 2 {
			t.Errorf("expected cached and uncached series, got %d", n)
		}
	})

	t.Run("Cache failure degrades to store", func(t *testing.T) {
		repo := &mocks.MockEventRepository{Summaries: summaries}
		cache := mocks.NewMockResultCache()
		cache.Fail = true
		svc := NewAnalyticsService(repo, cache, time.Minute, discardLogger(), nil)

		for i := 0; i < 2; i++ {
			got, cached, err := svc.Summarize(ctx, app, domain.SummaryFilter{})
			if err != nil || cached || len(got) != 1 {
				t.Fatalf("call %d: got %+v cached=%v err=%v", i, got, cached, err)
			}
		}
		if repo.SummarizeCalls != 2 {
			t.Errorf("expected every call to hit the store, got %d", repo.SummarizeCalls)
		}
	})

	t.Run("Unreadable cache entry is recomputed", func(t *testing.T) {
		repo := &mocks.MockEventRepository{Summaries: summaries}
		cache := mocks.NewMockResultCache()
		cache.Entries[SummaryCacheKey(app, domain.SummaryFilter{})] = []byte("{not json")
		svc := NewAnalyticsService(repo, cache, time.Minute, discardLogger(), nil)

		_, cached, err := svc.Summarize(ctx, app, domain.SummaryFilter{})
		if err != nil || cached || repo.SummarizeCalls != 1 {
			t.Errorf("expected recompute, cached=%v err=%v calls=%d", cached, err, repo.SummarizeCalls)
		}
	})

	t.Run("Empty result is an empty list", func(t *testing.T) {
		svc := NewAnalyticsService(&mocks.MockEventRepository{}, mocks.NewMockResultCache(), time.Minute, discardLogger(), nil)
		got, _, err := svc.Summarize(ctx, app, domain.SummaryFilter{})
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v, %v", got, err)
		}
	})

	t.Run("Store error propagates and is not cached", func(t *testing.T) {
		repo := &mocks.MockEventRepository{SummarizeErr: fmt.Errorf("query: %w", domain.ErrStoreUnavailable)}
		cache := mocks.NewMockResultCache()
		svc := NewAnalyticsService(repo, cache, time.Minute, discardLogger(), nil)

		if _, _, err := svc.Summarize(ctx, app, domain.SummaryFilter{}); !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
		if cache.PutCalls != 0 {
			t.Error("expected nothing to be cached")
		}
	})

	t.Run("Tenant id is always passed through", func(t *testing.T) {
		repo := &mocks.MockEventRepository{}
		svc := NewAnalyticsService(repo, mocks.NewMockResultCache(), time.Minute, discardLogger(), nil)
		filter := domain.SummaryFilter{EventName: "click"}
		_, _, _ = svc.Summarize(ctx, app, filter)
		if repo.LastAppID != app || repo.LastSummary.EventName != "click" {
			t.Errorf("unexpected query args: %s %+v", repo.LastAppID, repo.LastSummary)
		}
	})
}

func TestAnalyticsService_UserStats(t *testing.T) {
	ctx := context.Background()
	app := uuid.New()
	stats := domain.UserStats{
		UserID:            "u1",
		TotalEvents:       3,
		RecentEvents:      []domain.RecentEvent{{Event: "page_view", Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}},
		LastKnownMetadata: []byte(`{"browser":"Chrome"}`),
		LastKnownIP:       "10.0.0.1",
	}

	t.Run("Miss then hit", func(t *testing.T) {
		repo := &mocks.MockEventRepository{Stats: stats}
		svc := NewAnalyticsService(repo, mocks.NewMockResultCache(), time.Minute, discardLogger(), nil)

		if _, cached, err := svc.UserStats(ctx, app, "u1", domain.UserStatsFilter{}); err != nil || cached {
			t.Fatalf("first call: cached=%v err=%v", cached, err)
		}
		got, cached, err := svc.UserStats(ctx, app, "u1", domain.UserStatsFilter{})
		if err != nil || !cached {
			t.Fatalf("second call: cached=%v err=%v", cached, err)
		}
		if got.TotalEvents != 3 || got.LastKnownIP != "10.0.0.1" || string(got.LastKnownMetadata) != `{"browser":"Chrome"}` {
			t.Errorf("cached stats mismatch: %+v", got)
		}
		if !got.RecentEvents[0].Timestamp.Equal(stats.RecentEvents[0].Timestamp) {
			t.Error("timestamp lost in cache round trip")
		}
		if repo.UserStatsCalls != 1 {
			t.Errorf("expected one store query, got %d", repo.UserStatsCalls)
		}
	})

	t.Run("Not found", func(t *testing.T) {
		repo := &mocks.MockEventRepository{UserStatsErr: domain.ErrNotFound}
		cache := mocks.NewMockResultCache()
		svc := NewAnalyticsService(repo, cache, time.Minute, discardLogger(), nil)

		if _, _, err := svc.UserStats(ctx, app, "ghost", domain.UserStatsFilter{}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if len(cache.Entries) != 0 {
			t.Error("expected not-found result to stay uncached")
		}
	})
}
