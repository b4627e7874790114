package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSinkEmit(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Emit(context.Background(), Event{
		Kind:   "enrich_run_completed",
		RunID:  "run-1",
		Detail: map[string]any{"total": 5},
	})

	require.NoError(t, err)
	assert.Equal(t, "enrich_run_completed", received.Kind)
	assert.Equal(t, "run-1", received.RunID)
	assert.False(t, received.OccurredAt.IsZero())
}

func TestWebhookSinkEmit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL).Emit(context.Background(), Event{Kind: "x"})
	assert.Error(t, err)
}

func TestNewWebhookSink_EmptyURLIsNop(t *testing.T) {
	sink := NewWebhookSink("")
	assert.IsType(t, NopSink{}, sink)
	assert.NoError(t, sink.Emit(context.Background(), Event{Kind: "x"}))
}
