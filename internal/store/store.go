package store

import (
	"context"
	"time"

	"github.com/substancewiki/catalog-cli/internal/model"
)

// Store defines the persistence interface for the catalogue pipeline.
// All Get* lookups return (nil, nil) when no record matches.
type Store interface {
	// Substances
	GetBySlug(ctx context.Context, slug string) (*model.Substance, error)
	GetByName(ctx context.Context, name string) (*model.Substance, error)
	GetByAlias(ctx context.Context, aliasSlug string) (*model.Substance, error)
	Insert(ctx context.Context, s *model.Substance) error
	// UpdateEnrichment rewrites provider-derived columns only. Editorial
	// columns (name, description, category, status) are additionally
	// updated when includeEditorial is true; the writer passes false for
	// published records so curator edits survive re-imports.
	UpdateEnrichment(ctx context.Context, s *model.Substance, includeEditorial bool) error
	InsertAliases(ctx context.Context, substanceID int64, aliases []model.Alias) (int64, error)

	// GetAllowedColumns returns the live column set of the substances
	// table, fetched once per batch by the persistence sanitizer.
	GetAllowedColumns(ctx context.Context) (map[string]bool, error)

	// Replication
	FetchUpdatedSince(ctx context.Context, cursor time.Time, status model.SubstanceStatus, limit int) ([]model.Substance, error)
	UpsertReplica(ctx context.Context, s *model.Substance) error

	// Sync consumer state
	GetOrCreateConsumer(ctx context.Context, name, entityType string) (*model.SyncConsumerState, error)
	ListConsumers(ctx context.Context) ([]model.SyncConsumerState, error)
	UpdateConsumerCursor(ctx context.Context, consumerID int64, cursor time.Time, syncAt time.Time) error
	CreateSyncRun(ctx context.Context, consumerID int64, cursorBefore time.Time) (*model.SyncRun, error)
	CompleteSyncRun(ctx context.Context, run *model.SyncRun) error
	InsertSyncError(ctx context.Context, runID int64, slug, message string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
