package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/V4T54L/event-analytics/internal/domain"
)

const eventsTableName = "events"

var eventColumns = []string{
	"id", "app_id", "event", "url", "referrer", "device", "ip_address", "timestamp", "user_id", "metadata", "received_at",
}

// EventRepository implements domain.EventRepository on PostgreSQL. It is both
// the append-only event log and the aggregation engine over it.
type EventRepository struct {
	db      *sqlx.DB
	logger  *slog.Logger
	timeout time.Duration
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sqlx.DB, logger *slog.Logger, timeout time.Duration) *EventRepository {
	return &EventRepository{
		db:      db,
		logger:  logger.With("component", "postgres_event_repository"),
		timeout: timeout,
	}
}

// Insert writes a single event.
func (r *EventRepository) Insert(ctx context.Context, event domain.Event) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
	INSERT INTO events (id, app_id, event, url, referrer, device, ip_address, timestamp, user_id, metadata, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := r.db.ExecContext(ctx, q, eventValues(event)...); err != nil {
		return r.fail("insert event", err)
	}
	return nil
}

// InsertBatch writes a batch of events using the COPY protocol in a single
// transaction. Either every event is written or none is.
func (r *EventRepository) InsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	txn, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return r.fail("begin batch", err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(eventsTableName, eventColumns...))
	if err != nil {
		return r.fail("prepare copy", err)
	}

	for _, event := range events {
		if _, err := stmt.ExecContext(ctx, eventValues(event)...); err != nil {
			_ = stmt.Close()
			return r.fail("copy event", err)
		}
	}

	// Flush buffered rows.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return r.fail("flush copy", err)
	}
	if err := stmt.Close(); err != nil {
		return r.fail("close copy", err)
	}

	if err := txn.Commit(); err != nil {
		return r.fail("commit batch", err)
	}
	return nil
}

const summarizeQuery = `
	WITH filtered AS (
		SELECT event, user_id, COALESCE(NULLIF(device, ''), 'unknown') AS device
		FROM events
		WHERE app_id = $1%s
	),
	totals AS (
		SELECT event, COUNT(*) AS event_count, COUNT(DISTINCT user_id) AS unique_users
		FROM filtered
		GROUP BY event
	),
	devices AS (
		SELECT event, jsonb_object_agg(device, device_count) AS device_data
		FROM (
			SELECT event, device, COUNT(*) AS device_count
			FROM filtered
			GROUP BY event, device
		) per_device
		GROUP BY event
	)
	SELECT t.event, t.event_count, t.unique_users, d.device_data
	FROM totals t
	JOIN devices d ON d.event = t.event
	ORDER BY t.event`

type summaryRow struct {
	Event       string `db:"event"`
	Count       int64  `db:"event_count"`
	UniqueUsers int64  `db:"unique_users"`
	DeviceData  []byte `db:"device_data"`
}

// Summarize groups the app's events by name in one round trip.
func (r *EventRepository) Summarize(ctx context.Context, appID uuid.UUID, filter domain.SummaryFilter) ([]domain.EventSummary, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	args := []any{appID}
	var where bytes.Buffer
	if filter.EventName != "" {
		args = append(args, filter.EventName)
		where.WriteString(" AND event = $" + strconv.Itoa(len(args)))
	}
	args = applyTimeRange(&where, args, filter.Start, filter.End)

	var rows []summaryRow
	if err := r.db.SelectContext(ctx, &rows, fmt.Sprintf(summarizeQuery, where.String()), args...); err != nil {
		return nil, r.fail("summarize events", err)
	}

	summaries := make([]domain.EventSummary, 0, len(rows))
	for _, row := range rows {
		breakdown := make(map[string]int64)
		if len(row.DeviceData) > 0 {
			if err := json.Unmarshal(row.DeviceData, &breakdown); err != nil {
				return nil, fmt.Errorf("decode device breakdown for %q: %w", row.Event, err)
			}
		}
		summaries = append(summaries, domain.EventSummary{
			EventName:       row.Event,
			Count:           row.Count,
			UniqueUsers:     row.UniqueUsers,
			DeviceBreakdown: breakdown,
		})
	}
	return summaries, nil
}

// userStatsQuery ranks the user's events newest first. COUNT(*) OVER () is
// evaluated before LIMIT, so every returned row carries the full total.
const userStatsQuery = `
	SELECT
		COUNT(*) OVER () AS total_events,
		event, timestamp, url, device, metadata, ip_address
	FROM (
		SELECT
			event, timestamp,
			COALESCE(url, '') AS url,
			COALESCE(device, '') AS device,
			metadata,
			COALESCE(ip_address, '') AS ip_address,
			ROW_NUMBER() OVER (ORDER BY timestamp DESC, id DESC) AS rn
		FROM events
		WHERE app_id = $1 AND user_id = $2%s
	) ranked
	ORDER BY rn
	LIMIT %d`

type userEventRow struct {
	TotalEvents int64     `db:"total_events"`
	Event       string    `db:"event"`
	Timestamp   time.Time `db:"timestamp"`
	URL         string    `db:"url"`
	Device      string    `db:"device"`
	Metadata    []byte    `db:"metadata"`
	IPAddress   string    `db:"ip_address"`
}

// UserStats returns the user's activity within one app. The most recent
// event supplies LastKnownMetadata and LastKnownIP.
func (r *EventRepository) UserStats(ctx context.Context, appID uuid.UUID, userID string, filter domain.UserStatsFilter) (domain.UserStats, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	args := []any{appID, userID}
	var where bytes.Buffer
	args = applyTimeRange(&where, args, filter.Start, filter.End)

	q := fmt.Sprintf(userStatsQuery, where.String(), domain.RecentEventsLimit)

	var rows []userEventRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return domain.UserStats{}, r.fail("user stats", err)
	}
	if len(rows) == 0 {
		return domain.UserStats{}, fmt.Errorf("user stats: %w", domain.ErrNotFound)
	}

	stats := domain.UserStats{
		UserID:       userID,
		TotalEvents:  rows[0].TotalEvents,
		RecentEvents: make([]domain.RecentEvent, 0, len(rows)),
		LastKnownIP:  rows[0].IPAddress,
	}
	if len(rows[0].Metadata) > 0 {
		stats.LastKnownMetadata = json.RawMessage(rows[0].Metadata)
	}
	for _, row := range rows {
		stats.RecentEvents = append(stats.RecentEvents, domain.RecentEvent{
			Event:     row.Event,
			Timestamp: row.Timestamp.UTC(),
			URL:       row.URL,
			Device:    row.Device,
		})
	}
	return stats, nil
}

func (r *EventRepository) fail(op string, err error) error {
	err = classify(op, err)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		r.logger.Error("event store operation failed", "op", op, "error", err)
	}
	return err
}

func applyTimeRange(buf *bytes.Buffer, args []any, start, end *time.Time) []any {
	if start != nil {
		args = append(args, start.UTC())
		buf.WriteString(" AND timestamp >= $" + strconv.Itoa(len(args)))
	}
	if end != nil {
		args = append(args, end.UTC())
		buf.WriteString(" AND timestamp <= $" + strconv.Itoa(len(args)))
	}
	return args
}

func eventValues(e domain.Event) []any {
	return []any{
		e.ID,
		e.AppID,
		e.Name,
		nullString(e.URL),
		nullString(e.Referrer),
		nullString(e.Device),
		nullString(e.IPAddress),
		e.Timestamp,
		nullString(e.UserID),
		nullJSON(e.Metadata),
		e.ReceivedAt,
	}
}
