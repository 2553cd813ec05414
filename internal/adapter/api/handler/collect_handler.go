package handler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/V4T54L/event-analytics/internal/adapter/api/middleware"
	"github.com/V4T54L/event-analytics/internal/adapter/api/response"
	"github.com/V4T54L/event-analytics/internal/adapter/metrics"
	"github.com/V4T54L/event-analytics/internal/domain"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
)

// CollectUseCase stores events for an authenticated app.
type CollectUseCase interface {
	Collect(ctx context.Context, appID uuid.UUID, event *domain.Event) error
	CollectBatch(ctx context.Context, appID uuid.UUID, events []domain.Event) error
}

// collectRequest is the wire shape of one event.
type collectRequest struct {
	Event     string          `json:"event" validate:"required,min=1,max=100"`
	URL       string          `json:"url" validate:"omitempty,url"`
	Referrer  string          `json:"referrer" validate:"omitempty,url"`
	Device    string          `json:"device" validate:"max=100"`
	IPAddress string          `json:"ipAddress" validate:"omitempty,ip"`
	Timestamp string          `json:"timestamp" validate:"omitempty,isodate"`
	UserID    string          `json:"userId" validate:"max=255"`
	Metadata  json.RawMessage `json:"metadata" validate:"jsonobject"`
}

func (r collectRequest) toDomain() domain.Event {
	e := domain.Event{
		Name:      r.Event,
		URL:       r.URL,
		Referrer:  r.Referrer,
		Device:    r.Device,
		IPAddress: r.IPAddress,
		UserID:    r.UserID,
	}
	if r.Timestamp != "" {
		e.Timestamp, _ = parseTime(r.Timestamp)
	}
	if raw := bytes.TrimSpace(r.Metadata); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		e.Metadata = append([]byte(nil), raw...)
	}
	return e
}

// badEventError carries field-level problems with a submitted event. line is
// the NDJSON line number, or 0 for a single JSON body.
type badEventError struct {
	line    int
	details []string
}

func (e *badEventError) Error() string {
	if e.line == 0 {
		return "invalid event"
	}
	return fmt.Sprintf("invalid event on line %d", e.line)
}

// CollectHandler handles HTTP requests for event collection.
type CollectHandler struct {
	useCase      CollectUseCase
	validate     *validator.Validate
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxEventSize int64
}

// NewCollectHandler creates a new CollectHandler. m may be nil.
func NewCollectHandler(uc CollectUseCase, logger *slog.Logger, maxEventSize int64, m *metrics.Metrics) *CollectHandler {
	return &CollectHandler{
		useCase:      uc,
		validate:     newValidator(),
		logger:       logger.With("component", "collect_handler"),
		metrics:      m,
		maxEventSize: maxEventSize,
	}
}

// ServeHTTP accepts a single JSON event or an NDJSON batch. A batch is stored
// atomically: one bad line rejects the whole request.
func (h *CollectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app, ok := middleware.AppFromContext(r.Context())
	if !ok {
		response.Fail(w, http.StatusUnauthorized, "Invalid or expired API key")
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.count("error_size", 1)
			response.Fail(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		h.count("error_parse", 1)
		response.Fail(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if h.metrics != nil {
		h.metrics.BytesTotal.Add(float64(len(body)))
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case contentTypeJSON:
		h.handleSingleJSON(w, r.Context(), app.ID, body)
	case contentTypeNDJSON:
		h.handleNDJSON(w, r.Context(), app.ID, body)
	default:
		h.count("error_media_type", 1)
		response.Fail(w, http.StatusUnsupportedMediaType, "Unsupported Content-Type")
	}
}

func (h *CollectHandler) handleSingleJSON(w http.ResponseWriter, ctx context.Context, appID uuid.UUID, body []byte) {
	event, err := h.decode(body, 0)
	if err != nil {
		h.rejectEvent(w, err)
		return
	}

	if err := h.useCase.Collect(ctx, appID, &event); err != nil {
		h.count("error_store", 1)
		response.Error(w, h.logger, err, response.Messages{Failure: "Failed to collect event"})
		return
	}

	h.count("accepted", 1)
	response.OK(w, http.StatusCreated, nil, "Event collected successfully")
}

func (h *CollectHandler) handleNDJSON(w http.ResponseWriter, ctx context.Context, appID uuid.UUID, body []byte) {
	var events []domain.Event
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEventSize))
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		event, err := h.decode(raw, line)
		if err != nil {
			h.rejectEvent(w, err)
			return
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		h.count("error_parse", 1)
		response.Fail(w, http.StatusBadRequest, "Failed to read NDJSON body", err.Error())
		return
	}
	if len(events) == 0 {
		h.count("error_validation", 1)
		response.Fail(w, http.StatusBadRequest, "Validation failed", "batch contains no events")
		return
	}

	if err := h.useCase.CollectBatch(ctx, appID, events); err != nil {
		h.count("error_store", len(events))
		response.Error(w, h.logger, err, response.Messages{Failure: "Failed to collect events"})
		return
	}

	h.count("accepted", len(events))
	response.OK(w, http.StatusCreated, map[string]int{"accepted": len(events)}, "Events collected successfully")
}

// decode parses and validates one event. Unknown fields are rejected.
func (h *CollectHandler) decode(raw []byte, line int) (domain.Event, error) {
	var req collectRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return domain.Event{}, &badEventError{line: line, details: []string{err.Error()}}
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.Event{}, &badEventError{line: line, details: validationDetails(err)}
	}
	return req.toDomain(), nil
}

func (h *CollectHandler) rejectEvent(w http.ResponseWriter, err error) {
	var bad *badEventError
	if !errors.As(err, &bad) {
		h.count("error_parse", 1)
		response.Fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	details := bad.details
	if bad.line > 0 {
		for i, d := range details {
			details[i] = fmt.Sprintf("line %d: %s", bad.line, d)
		}
	}
	h.count("error_validation", 1)
	response.Fail(w, http.StatusBadRequest, "Validation failed", details...)
}

func (h *CollectHandler) count(status string, n int) {
	if h.metrics != nil {
		h.metrics.EventsTotal.WithLabelValues(status).Add(float64(n))
	}
}
