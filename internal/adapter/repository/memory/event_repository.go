package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/domain"
)

// EventRepository keeps events in a slice per app and computes aggregates
// with the same semantics as the SQL implementation.
type EventRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]domain.Event
}

// NewEventRepository creates an empty in-memory event log.
func NewEventRepository() *EventRepository {
	return &EventRepository{events: make(map[uuid.UUID][]domain.Event)}
}

func (r *EventRepository) Insert(ctx context.Context, event domain.Event) error {
	return r.InsertBatch(ctx, []domain.Event{event})
}

func (r *EventRepository) InsertBatch(ctx context.Context, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		e.Metadata = append([]byte(nil), e.Metadata...)
		r.events[e.AppID] = append(r.events[e.AppID], e)
	}
	return nil
}

func (r *EventRepository) Summarize(ctx context.Context, appID uuid.UUID, filter domain.SummaryFilter) ([]domain.EventSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type group struct {
		summary domain.EventSummary
		users   map[string]struct{}
	}
	groups := make(map[string]*group)

	for _, e := range r.events[appID] {
		if filter.EventName != "" && e.Name != filter.EventName {
			continue
		}
		if !domain.InRange(e.Timestamp, filter.Start, filter.End) {
			continue
		}

		g, ok := groups[e.Name]
		if !ok {
			g = &group{
				summary: domain.EventSummary{EventName: e.Name, DeviceBreakdown: make(map[string]int64)},
				users:   make(map[string]struct{}),
			}
			groups[e.Name] = g
		}
		g.summary.Count++
		g.summary.DeviceBreakdown[domain.DeviceLabel(e.Device)]++
		if e.UserID != "" {
			g.users[e.UserID] = struct{}{}
		}
	}

	summaries := make([]domain.EventSummary, 0, len(groups))
	for _, g := range groups {
		g.summary.UniqueUsers = int64(len(g.users))
		summaries = append(summaries, g.summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].EventName < summaries[j].EventName
	})
	return summaries, nil
}

func (r *EventRepository) UserStats(ctx context.Context, appID uuid.UUID, userID string, filter domain.UserStatsFilter) (domain.UserStats, error) {
	r.mu.RLock()
	var matched []domain.Event
	for _, e := range r.events[appID] {
		if e.UserID == userID && domain.InRange(e.Timestamp, filter.Start, filter.End) {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		return domain.UserStats{}, domain.ErrNotFound
	}

	// Newest first; ties broken by id descending, as in the SQL ranking.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return bytes.Compare(matched[i].ID[:], matched[j].ID[:]) > 0
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := min(len(matched), domain.RecentEventsLimit)
	stats := domain.UserStats{
		UserID:       userID,
		TotalEvents:  int64(len(matched)),
		RecentEvents: make([]domain.RecentEvent, 0, limit),
		LastKnownIP:  matched[0].IPAddress,
	}
	if len(matched[0].Metadata) > 0 {
		stats.LastKnownMetadata = append([]byte(nil), matched[0].Metadata...)
	}
	for _, e := range matched[:limit] {
		stats.RecentEvents = append(stats.RecentEvents, domain.RecentEvent{
			Event:     e.Name,
			Timestamp: e.Timestamp,
			URL:       e.URL,
			Device:    e.Device,
		})
	}
	return stats, nil
}
