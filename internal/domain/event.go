package domain

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// UnknownDevice is the device label used for events collected without one.
const UnknownDevice = "unknown"

// RecentEventsLimit caps the number of events returned in UserStats.
const RecentEventsLimit = 10

// Event is one immutable analytics record attributed to an app.
type Event struct {
	ID         uuid.UUID       `json:"eventId"`
	AppID      uuid.UUID       `json:"appId"`
	Name       string          `json:"event"`
	URL        string          `json:"url,omitempty"`
	Referrer   string          `json:"referrer,omitempty"`
	Device     string          `json:"device,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	UserID     string          `json:"userId,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`

	PIIRedacted bool `json:"-"`
}

// SummaryFilter narrows a Summarize scan. Zero values impose no constraint.
type SummaryFilter struct {
	EventName string
	Start     *time.Time
	End       *time.Time
}

// UserStatsFilter narrows a UserStats scan. Zero values impose no constraint.
type UserStatsFilter struct {
	Start *time.Time
	End   *time.Time
}

// EventSummary is the aggregate for one event name.
type EventSummary struct {
	EventName       string           `json:"event"`
	Count           int64            `json:"count"`
	UniqueUsers     int64            `json:"uniqueUsers"`
	DeviceBreakdown map[string]int64 `json:"deviceData"`
}

// RecentEvent is the projection of an event returned in UserStats.
type RecentEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
	Device    string    `json:"device,omitempty"`
}

// UserStats is the per-user activity projection within one app.
// LastKnownMetadata and LastKnownIP are taken from the most recent event.
type UserStats struct {
	UserID            string          `json:"userId"`
	TotalEvents       int64           `json:"totalEvents"`
	RecentEvents      []RecentEvent   `json:"recentEvents"`
	LastKnownMetadata json.RawMessage `json:"deviceDetails,omitempty"`
	LastKnownIP       string          `json:"ipAddress,omitempty"`
}

// DeviceLabel returns the breakdown label for a raw device value.
func DeviceLabel(device string) string {
	if device == "" {
		return UnknownDevice
	}
	return device
}

// InRange reports whether t falls within the inclusive [start, end] bounds.
func InRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}
