// Package sync implements cursor-based replication of catalogue records to
// a downstream target. Each named consumer tracks its own forward-only
// cursor; a failed record is logged against the run and never blocks its
// siblings or moves the cursor past records that did not replicate.
package sync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/internal/store"
)

// Target is the downstream side of replication. store.Store satisfies it,
// so a second database works as a target directly.
type Target interface {
	GetBySlug(ctx context.Context, slug string) (*model.Substance, error)
	UpsertReplica(ctx context.Context, s *model.Substance) error
}

// Consumer replicates one page of updated records per Run invocation.
type Consumer struct {
	name       string
	entityType string
	source     store.Store
	target     Target
	status     model.SubstanceStatus
	pageSize   int
}

// NewConsumer builds a consumer. An empty status replicates records in any
// editorial state; pass a status to restrict, e.g. published-only mirrors.
func NewConsumer(name, entityType string, source store.Store, target Target, status model.SubstanceStatus, pageSize int) *Consumer {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Consumer{
		name:       name,
		entityType: entityType,
		source:     source,
		target:     target,
		status:     status,
		pageSize:   pageSize,
	}
}

// Run executes one sync cycle: load or create the consumer state, open a
// run record, fetch one page of records strictly newer than the cursor,
// replicate each with per-record error isolation, then advance the cursor
// to the newest successfully replicated timestamp. Only a page-level fetch
// failure marks the run failed.
func (c *Consumer) Run(ctx context.Context) (*model.SyncRun, error) {
	state, err := c.source.GetOrCreateConsumer(ctx, c.name, c.entityType)
	if err != nil {
		return nil, eris.Wrap(err, "sync: load consumer state")
	}

	run, err := c.source.CreateSyncRun(ctx, state.ID, state.LastCursor)
	if err != nil {
		return nil, eris.Wrap(err, "sync: open run")
	}

	log := zap.L().With(
		zap.String("consumer", c.name),
		zap.Int64("run_id", run.ID),
		zap.Time("cursor", state.LastCursor),
	)
	log.Info("sync: run started")

	records, err := c.source.FetchUpdatedSince(ctx, state.LastCursor, c.status, c.pageSize)
	if err != nil {
		run.Status = model.SyncRunFailed
		run.Error = err.Error()
		run.CursorAfter = state.LastCursor
		if completeErr := c.source.CompleteSyncRun(ctx, run); completeErr != nil {
			log.Warn("sync: closing failed run", zap.Error(completeErr))
		}
		return run, eris.Wrap(err, "sync: fetch page")
	}

	maxCursor := state.LastCursor
	for _, record := range records {
		if err := c.replicate(ctx, &record); err != nil {
			run.Failed++
			log.Warn("sync: record failed",
				zap.String("slug", record.Slug),
				zap.Error(err),
			)
			if insertErr := c.source.InsertSyncError(ctx, run.ID, record.Slug, err.Error()); insertErr != nil {
				log.Warn("sync: recording error row", zap.Error(insertErr))
			}
			continue
		}
		run.Processed++
		if record.UpdatedAt.After(maxCursor) {
			maxCursor = record.UpdatedAt
		}
	}

	// Forward-only: an empty or fully failed page leaves the cursor alone.
	if maxCursor.After(state.LastCursor) {
		if err := c.source.UpdateConsumerCursor(ctx, state.ID, maxCursor, time.Now().UTC()); err != nil {
			return run, eris.Wrap(err, "sync: advance cursor")
		}
	}

	run.Status = model.SyncRunSuccess
	run.CursorAfter = maxCursor
	if err := c.source.CompleteSyncRun(ctx, run); err != nil {
		return run, eris.Wrap(err, "sync: close run")
	}

	log.Info("sync: run complete",
		zap.Int("processed", run.Processed),
		zap.Int("failed", run.Failed),
		zap.Time("cursor_after", maxCursor),
	)
	return run, nil
}

// replicate writes one record to the target unless the target already holds
// an equal or newer version.
func (c *Consumer) replicate(ctx context.Context, record *model.Substance) error {
	existing, err := c.target.GetBySlug(ctx, record.Slug)
	if err != nil {
		return eris.Wrap(err, "sync: target lookup")
	}
	if existing != nil && !record.UpdatedAt.After(existing.UpdatedAt) {
		return nil
	}
	if err := c.target.UpsertReplica(ctx, record); err != nil {
		return eris.Wrap(err, "sync: target upsert")
	}
	return nil
}
