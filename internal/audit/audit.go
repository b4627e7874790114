// Package audit emits run-level events to an external webhook. Emission is
// fire-and-forget: a dead sink never affects pipeline results.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Event is one audit record.
type Event struct {
	Kind       string         `json:"kind"`
	RunID      string         `json:"run_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// NopSink discards every event. Used when no webhook is configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

// WebhookSink POSTs each event as JSON to a configured URL.
type WebhookSink struct {
	url  string
	http *http.Client
}

// NewWebhookSink returns a webhook sink, or a NopSink when url is empty.
func NewWebhookSink(url string) Sink {
	if url == "" {
		return NopSink{}
	}
	return &WebhookSink{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Emit posts the event. Callers are expected to treat failures as
// non-fatal; the sink itself only reports them.
func (s *WebhookSink) Emit(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "audit: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "audit: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "audit: post event")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return eris.Errorf("audit: webhook returned %d", resp.StatusCode)
	}

	zap.L().Debug("audit: event delivered",
		zap.String("kind", ev.Kind),
		zap.String("run_id", ev.RunID),
	)
	return nil
}
