package pii

import (
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"github.com/V4T54L/event-analytics/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor masks configured keys in event metadata before it is stored.
// Keys match case-insensitively at any depth.
type Redactor struct {
	fields map[string]struct{}
	logger *slog.Logger
}

// NewRedactor creates a Redactor for the given field names.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			set[f] = struct{}{}
		}
	}
	return &Redactor{
		fields: set,
		logger: logger.With("component", "pii_redactor"),
	}
}

// Redact rewrites event.Metadata in place. Metadata that is not valid JSON is
// left untouched and the error is returned.
func (r *Redactor) Redact(event *domain.Event) error {
	if len(r.fields) == 0 || len(event.Metadata) == 0 {
		return nil
	}

	var doc any
	if err := json.Unmarshal(event.Metadata, &doc); err != nil {
		r.logger.Warn("failed to unmarshal metadata for PII redaction", "error", err, "event_id", event.ID)
		return err
	}

	if !r.walk(doc) {
		return nil
	}

	out, err := json.Marshal(doc)
	if err != nil {
		r.logger.Error("failed to marshal metadata after PII redaction", "error", err, "event_id", event.ID)
		return err
	}
	event.Metadata = out
	event.PIIRedacted = true
	return nil
}

func (r *Redactor) walk(v any) bool {
	redacted := false
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if _, ok := r.fields[strings.ToLower(k)]; ok {
				node[k] = RedactedPlaceholder
				redacted = true
				continue
			}
			if r.walk(child) {
				redacted = true
			}
		}
	case []any:
		for _, child := range node {
			if r.walk(child) {
				redacted = true
			}
		}
	}
	return redacted
}
