package model

import "time"

// SyncRunStatus represents the lifecycle of a single sync invocation.
type SyncRunStatus string

const (
	SyncRunRunning SyncRunStatus = "running"
	SyncRunSuccess SyncRunStatus = "success"
	SyncRunFailed  SyncRunStatus = "failed"
)

// SyncConsumerState is the persisted cursor position for a named consumer.
// The cursor is forward-only: it advances to the maximum update timestamp
// among successfully processed records and never moves backwards.
type SyncConsumerState struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	EntityType string         `json:"entity_type"`
	LastCursor time.Time      `json:"last_cursor"`
	LastSyncAt *time.Time     `json:"last_sync_at,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}

// SyncRun records one consumer invocation.
type SyncRun struct {
	ID           int64         `json:"id"`
	ConsumerID   int64         `json:"consumer_id"`
	Status       SyncRunStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CursorBefore time.Time     `json:"cursor_before"`
	CursorAfter  time.Time     `json:"cursor_after"`
	Processed    int           `json:"processed"`
	Failed       int           `json:"failed"`
	Error        string        `json:"error,omitempty"`
}

// SyncError is one failed record within a run. A failed record never
// blocks its siblings.
type SyncError struct {
	ID         int64     `json:"id"`
	RunID      int64     `json:"run_id"`
	Slug       string    `json:"slug"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}
