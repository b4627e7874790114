package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/canonical"
	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/internal/store"
	"github.com/substancewiki/catalog-cli/pkg/wikidata"
)

// Importer ingests bulk name lists: pasted lines or CSV content. Names are
// canonicalized and deduplicated up front, optionally matched to source
// entities, and either handed to the enrichment pipeline in capped chunks
// or written as minimal draft records.
type Importer struct {
	store        store.Store
	writer       *Writer
	source       wikidata.Client
	orchestrator *Orchestrator
	synonyms     *canonical.SynonymTable
	chunkSize    int
}

// NewImporter builds an importer. The orchestrator may be nil when
// enrichment queueing is never requested.
func NewImporter(s store.Store, source wikidata.Client, orch *Orchestrator, synonyms *canonical.SynonymTable, chunkSize int) *Importer {
	if chunkSize <= 0 || chunkSize > model.MaxBatchItems {
		chunkSize = model.MaxBatchItems
	}
	return &Importer{
		store:        s,
		writer:       NewWriter(s),
		source:       source,
		orchestrator: orch,
		synonyms:     synonyms,
		chunkSize:    chunkSize,
	}
}

// Import runs one bulk ingestion. Per-name failures are isolated into the
// per-name results; the returned error covers input parsing and
// enrichment-batch setup only.
func (i *Importer) Import(ctx context.Context, req model.ImportRequest) (*model.ImportResponse, error) {
	rows, err := i.parseInput(req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("importer: no names in input")
	}

	// Synonym columns are keyed by the resolved canonical's slug so they
	// survive rows whose name the synonym table remaps.
	names := make([]string, 0, len(rows))
	synonymsBySlug := make(map[string][]string, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
		if len(row.Synonyms) > 0 {
			slug := canonical.Slugify(i.synonyms.Resolve(row.Name))
			synonymsBySlug[slug] = append(synonymsBySlug[slug], row.Synonyms...)
		}
	}

	entries := canonical.Deduplicate(names, i.synonyms)
	zap.L().Info("importer: deduplicated input",
		zap.Int("raw", len(names)),
		zap.Int("unique", len(entries)),
		zap.String("source", string(req.ImportSource)),
	)

	items := make([]model.CandidateItem, 0, len(entries))
	for _, entry := range entries {
		item := model.CandidateItem{Label: entry.OriginalName}
		if req.Options.FetchSources {
			item.QID = i.lookupQID(ctx, entry.CanonicalName)
		}
		items = append(items, item)
	}

	if req.Options.QueueEnrichment {
		return i.importViaEnrichment(ctx, items, req.Options)
	}
	return i.importMinimal(ctx, entries, items, synonymsBySlug), nil
}

func (i *Importer) parseInput(req model.ImportRequest) ([]canonical.Row, error) {
	switch req.ImportSource {
	case model.ImportSourceCSV:
		return canonical.ParseCSV(req.CSVContent)
	case model.ImportSourcePaste, "":
		rows := make([]canonical.Row, 0, len(req.Names))
		for _, name := range req.Names {
			rows = append(rows, canonical.ParseDelimited(name)...)
		}
		return rows, nil
	default:
		return nil, eris.Errorf("importer: unknown import source %q", req.ImportSource)
	}
}

// lookupQID resolves a name to its best source match. Lookup failures and
// empty result sets both come back as no match; an import never fails
// because the source was unreachable.
func (i *Importer) lookupQID(ctx context.Context, name string) string {
	if i.source == nil {
		return ""
	}
	hits, err := i.source.SearchByName(ctx, name)
	if err != nil {
		zap.L().Warn("importer: source search failed",
			zap.String("name", name),
			zap.Error(err),
		)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}
	return hits[0].QID
}

// importViaEnrichment hands the whole list to the enrichment pipeline in
// chunks no larger than the batch cap.
func (i *Importer) importViaEnrichment(ctx context.Context, items []model.CandidateItem, opts model.ImportOptions) (*model.ImportResponse, error) {
	if i.orchestrator == nil {
		return nil, eris.New("importer: enrichment requested but no orchestrator configured")
	}

	resp := &model.ImportResponse{}
	for start := 0; start < len(items); start += i.chunkSize {
		end := start + i.chunkSize
		if end > len(items) {
			end = len(items)
		}
		batch, err := i.orchestrator.EnrichBatch(ctx, model.EnrichRequest{
			Items:          items[start:end],
			SkipGenerative: !opts.GenerateDraft,
		})
		if err != nil {
			return nil, eris.Wrap(err, "importer: enrichment chunk")
		}
		for _, out := range batch.Items {
			resp.Results = append(resp.Results, model.ImportResult{
				Name:   out.Name,
				Slug:   out.Slug,
				Status: out.DBStatus,
				ID:     out.SubstanceID,
				Error:  out.Error,
			})
		}
	}
	resp.Summary = summarizeImport(resp.Results)
	return resp, nil
}

// importMinimal writes bare draft records without touching the providers.
func (i *Importer) importMinimal(ctx context.Context, entries []model.DeduplicatedEntry, items []model.CandidateItem, synonymsBySlug map[string][]string) *model.ImportResponse {
	resp := &model.ImportResponse{}
	for idx, entry := range entries {
		substance := &model.Substance{
			Slug:       entry.Slug,
			Name:       entry.OriginalName,
			WikidataID: items[idx].QID,
			Status:     model.StatusDraft,
		}

		var aliases []model.Alias
		for _, syn := range synonymsBySlug[entry.Slug] {
			aliasSlug := canonical.Slugify(syn)
			if aliasSlug == "" || aliasSlug == entry.Slug {
				continue
			}
			aliases = append(aliases, model.Alias{Name: syn, Slug: aliasSlug, Source: "import"})
		}

		result := model.ImportResult{Name: entry.OriginalName, Slug: entry.Slug}
		write, err := i.writer.Upsert(ctx, substance, aliases)
		result.Status = write.Status
		result.ID = write.SubstanceID
		if err != nil {
			result.Error = err.Error()
		}
		resp.Results = append(resp.Results, result)
	}
	resp.Summary = summarizeImport(resp.Results)
	return resp
}

func summarizeImport(results []model.ImportResult) model.ImportSummary {
	s := model.ImportSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case model.DBInserted:
			s.Created++
		case model.DBUpdated:
			s.Updated++
		case model.DBSkipped:
			s.Skipped++
		case model.DBFailed:
			s.Failed++
		}
	}
	return s
}
