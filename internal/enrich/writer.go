package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/canonical"
	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/internal/store"
)

// WriteResult reports how a single substance was persisted.
type WriteResult struct {
	Status      model.DBStatus
	SubstanceID int64
}

// Writer persists enriched substances idempotently. Natural-key resolution
// runs slug, then canonical name, then the alias table; the first hit wins.
type Writer struct {
	store store.Store
}

// NewWriter builds a writer over the given store.
func NewWriter(s store.Store) *Writer {
	return &Writer{store: s}
}

// Upsert writes one substance. An alias match means the incoming name is a
// known alternative spelling of an existing record, so the item is skipped
// as a duplicate rather than spawning a second record. A slug or name match
// updates the existing record in place; published records take enrichment
// columns only, so curator edits are never clobbered by a re-import.
func (w *Writer) Upsert(ctx context.Context, s *model.Substance, aliases []model.Alias) (WriteResult, error) {
	existing, err := w.resolve(ctx, s)
	if err != nil {
		return WriteResult{Status: model.DBFailed}, err
	}

	if existing == nil {
		aliasHit, err := w.store.GetByAlias(ctx, s.Slug)
		if err != nil {
			return WriteResult{Status: model.DBFailed}, eris.Wrap(err, "writer: alias lookup")
		}
		if aliasHit != nil {
			zap.L().Info("writer: skipping duplicate, name is an alias",
				zap.String("name", s.Name),
				zap.String("canonical_slug", aliasHit.Slug),
			)
			return WriteResult{Status: model.DBSkipped, SubstanceID: aliasHit.ID}, nil
		}

		if err := w.store.Insert(ctx, s); err != nil {
			return WriteResult{Status: model.DBFailed}, eris.Wrap(err, "writer: insert")
		}
		w.writeAliases(s.ID, aliases)
		return WriteResult{Status: model.DBInserted, SubstanceID: s.ID}, nil
	}

	s.ID = existing.ID
	includeEditorial := existing.Status != model.StatusPublished
	if err := w.store.UpdateEnrichment(ctx, s, includeEditorial); err != nil {
		return WriteResult{Status: model.DBFailed}, eris.Wrap(err, "writer: update")
	}
	w.writeAliases(existing.ID, aliases)
	return WriteResult{Status: model.DBUpdated, SubstanceID: existing.ID}, nil
}

func (w *Writer) resolve(ctx context.Context, s *model.Substance) (*model.Substance, error) {
	existing, err := w.store.GetBySlug(ctx, s.Slug)
	if err != nil {
		return nil, eris.Wrap(err, "writer: slug lookup")
	}
	if existing != nil {
		return existing, nil
	}

	existing, err = w.store.GetByName(ctx, canonical.NormalizeName(s.Name))
	if err != nil {
		return nil, eris.Wrap(err, "writer: name lookup")
	}
	return existing, nil
}

// writeAliases records alternative names best-effort: alias bookkeeping
// never fails the item that carried them.
func (w *Writer) writeAliases(substanceID int64, aliases []model.Alias) {
	if len(aliases) == 0 {
		return
	}
	bestEffort("insert_aliases", func() error {
		n, err := w.store.InsertAliases(context.Background(), substanceID, aliases)
		if err == nil && n > 0 {
			zap.L().Debug("writer: recorded aliases",
				zap.Int64("substance_id", substanceID),
				zap.Int64("inserted", n),
			)
		}
		return err
	})
}
