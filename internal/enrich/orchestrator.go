package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/audit"
	"github.com/substancewiki/catalog-cli/internal/canonical"
	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/internal/store"
	"github.com/substancewiki/catalog-cli/pkg/wikidata"
)

// Orchestrator runs batch enrichment end to end: source validation,
// chemical and generative stages, confidence scoring, and the idempotent
// write. Items are fully isolated from one another; only batch-level setup
// failures abort a run.
type Orchestrator struct {
	store      store.Store
	writer     *Writer
	source     wikidata.Client
	chemical   *ChemicalConnector
	generative *GenerativeConnector
	sink       audit.Sink
	maxBatch   int
}

// NewOrchestrator wires the pipeline. Nil source, chemical, or generative
// dependencies degrade the corresponding stage to failed or skipped rather
// than erroring.
func NewOrchestrator(s store.Store, source wikidata.Client, chemical *ChemicalConnector, generative *GenerativeConnector, sink audit.Sink, maxBatch int) *Orchestrator {
	if maxBatch <= 0 || maxBatch > model.MaxBatchItems {
		maxBatch = model.MaxBatchItems
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Orchestrator{
		store:      s,
		writer:     NewWriter(s),
		source:     source,
		chemical:   chemical,
		generative: generative,
		sink:       sink,
		maxBatch:   maxBatch,
	}
}

// EnrichBatch processes up to the batch cap of candidate items. The
// returned error covers batch-level setup only; per-item failures are
// reported in the response and never abort the remainder of the batch.
func (o *Orchestrator) EnrichBatch(ctx context.Context, req model.EnrichRequest) (*model.EnrichResponse, error) {
	if len(req.Items) == 0 {
		return nil, eris.New("orchestrator: empty batch")
	}
	if len(req.Items) > o.maxBatch {
		return nil, eris.Errorf("orchestrator: batch of %d exceeds cap of %d", len(req.Items), o.maxBatch)
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("orchestrator: starting batch",
		zap.Int("items", len(req.Items)),
		zap.Bool("dry_run", req.DryRun),
	)

	// Fetched once per batch: the persistence sanitizer partitions every
	// item's payload against the same live column set.
	allowed, err := o.store.GetAllowedColumns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: fetch column allowlist")
	}

	started := time.Now()
	outcomes := make([]model.EnrichmentOutcome, 0, len(req.Items))
	for _, item := range req.Items {
		outcomes = append(outcomes, o.enrichOne(ctx, item, req, allowed, log))
	}

	summary := summarize(outcomes)
	resp := &model.EnrichResponse{RunID: runID, Summary: summary, Items: outcomes}

	bestEffort("audit_enrich_run", func() error {
		return o.sink.Emit(ctx, audit.Event{
			Kind:  "enrich_run_completed",
			RunID: runID,
			Detail: map[string]any{
				"total":       summary.Total,
				"inserted":    summary.Inserted,
				"updated":     summary.Updated,
				"skipped":     summary.Skipped,
				"failed":      summary.Failed,
				"dry_run":     req.DryRun,
				"duration_ms": time.Since(started).Milliseconds(),
			},
		})
	})

	log.Info("orchestrator: batch complete",
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Float64("avg_confidence", summary.AvgConfidence),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

// enrichOne runs the per-item state machine. The only hard stop is a
// missing identity: no label from either the request or the source lookup
// means there is nothing to key a record on. Every provider failure past
// that point degrades the item instead of killing it.
func (o *Orchestrator) enrichOne(ctx context.Context, item model.CandidateItem, req model.EnrichRequest, allowed map[string]bool, log *zap.Logger) model.EnrichmentOutcome {
	out := model.EnrichmentOutcome{
		QID:           item.QID,
		Name:          item.Label,
		PubChemStatus: model.StageSkipped,
		AIStatus:      model.StageSkipped,
	}

	// Source stage.
	name := item.Label
	description := item.Description
	refCID := item.PubChemCID
	sourceValidated := false
	if o.source != nil && item.QID != "" {
		entity, err := o.source.GetEntity(ctx, item.QID)
		if err != nil {
			out.WikidataStatus = model.StageFailed
			log.Warn("orchestrator: source lookup failed",
				zap.String("qid", item.QID),
				zap.Error(err),
			)
		} else {
			out.WikidataStatus = model.StageOK
			sourceValidated = true
			if entity.Label != "" {
				name = entity.Label
			}
			if entity.Description != "" {
				description = entity.Description
			}
			if entity.PubChemCID != "" {
				refCID = entity.PubChemCID
			}
		}
	} else {
		out.WikidataStatus = model.StageSkipped
	}

	if strings.TrimSpace(name) == "" {
		out.Error = "no usable name from request or source"
		out.DBStatus = model.DBFailed
		return out
	}
	out.Name = name
	out.Slug = canonical.Slugify(name)

	// Chemical stage.
	chem := ChemicalResult{Status: model.StageSkipped}
	if !req.SkipChemical {
		chem = o.chemical.Fetch(ctx, name, refCID)
	}
	out.PubChemStatus = chem.Status

	// Generative stage.
	gen := GenerativeResult{Status: model.StageSkipped}
	if !req.SkipGenerative {
		gen = o.generative.Enrich(ctx, name, description, chemicalContext(chem.Data))
	}
	out.AIStatus = gen.Status

	out.Confidence = Score(ScoreInput{
		SourceValidated:   sourceValidated,
		HasDescription:    description != "",
		ChemicalStatus:    chem.Status,
		HasSynonyms:       chem.Data != nil && len(chem.Data.Synonyms) > 0,
		HasFormula:        chem.Data != nil && chem.Data.Formula != "",
		GenerativeStatus:  gen.Status,
		GenerativeHasData: gen.Data != nil,
	})

	substance := o.buildSubstance(item, name, description, out, chem, gen, allowed)

	if req.DryRun {
		out.DBStatus = model.DBSkipped
		return out
	}

	res, err := o.writer.Upsert(ctx, substance, buildAliases(substance.Slug, chem.Data))
	out.DBStatus = res.Status
	out.SubstanceID = res.SubstanceID
	if err != nil {
		out.Error = err.Error()
		log.Warn("orchestrator: persist failed",
			zap.String("slug", substance.Slug),
			zap.Error(err),
		)
	}
	return out
}

// buildSubstance assembles the record and routes every provider-derived
// value through the persistence sanitizer: values whose column exists land
// on the record, everything else folds into extra so schema drift never
// silently drops data.
func (o *Orchestrator) buildSubstance(item model.CandidateItem, name, description string, out model.EnrichmentOutcome, chem ChemicalResult, gen GenerativeResult, allowed map[string]bool) *model.Substance {
	payload := map[string]any{
		"wikidata_id": item.QID,
	}
	if chem.Data != nil {
		payload["pubchem_cid"] = chem.Data.CID
		payload["chemical_formula"] = chem.Data.Formula
		payload["molecular_weight"] = chem.Data.MolecularWeight
		payload["iupac_name"] = chem.Data.IUPACName
		if chem.Data.SMILES != "" {
			payload["smiles"] = chem.Data.SMILES
		}
	}
	known, overflow := SplitPayload(payload, allowed)

	s := &model.Substance{
		Slug:        out.Slug,
		Name:        canonical.DisplayName(name),
		Description: description,
		Confidence:  out.Confidence,
		Status:      model.StatusDraft,
	}
	if v, ok := known["wikidata_id"].(string); ok {
		s.WikidataID = v
	}
	if v, ok := known["pubchem_cid"].(int64); ok {
		s.PubChemCID = v
	}
	if v, ok := known["chemical_formula"].(string); ok {
		s.ChemicalFormula = v
	}
	if v, ok := known["molecular_weight"].(float64); ok {
		s.MolecularWeight = v
	}
	if v, ok := known["iupac_name"].(string); ok {
		s.IUPACName = v
	}
	if len(overflow) > 0 {
		s.Extra = overflow
	}

	if chem.Data != nil || gen.Data != nil {
		s.Enrichment = &model.Enrichment{Chemical: chem.Data, Generative: gen.Data}
	}
	return s
}

// chemicalContext renders the chemical lookup into a short prompt fragment
// for the generative stage.
func chemicalContext(c *model.ChemicalProperties) string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.IUPACName != "" {
		parts = append(parts, "IUPAC name "+c.IUPACName)
	}
	if c.Formula != "" {
		parts = append(parts, "formula "+c.Formula)
	}
	return strings.Join(parts, ", ")
}

// buildAliases turns chemical synonyms into alias rows, dropping any that
// collapse to the substance's own slug.
func buildAliases(slug string, chem *model.ChemicalProperties) []model.Alias {
	if chem == nil {
		return nil
	}
	seen := map[string]bool{slug: true}
	var aliases []model.Alias
	for _, syn := range chem.Synonyms {
		aliasSlug := canonical.Slugify(syn)
		if aliasSlug == "" || seen[aliasSlug] {
			continue
		}
		seen[aliasSlug] = true
		aliases = append(aliases, model.Alias{
			Name:   syn,
			Slug:   aliasSlug,
			Source: "pubchem",
		})
	}
	return aliases
}

func summarize(outcomes []model.EnrichmentOutcome) model.BatchSummary {
	s := model.BatchSummary{Total: len(outcomes)}
	confidenceSum := 0
	for _, out := range outcomes {
		confidenceSum += out.Confidence
		switch out.DBStatus {
		case model.DBInserted:
			s.Inserted++
		case model.DBUpdated:
			s.Updated++
		case model.DBSkipped:
			s.Skipped++
		case model.DBFailed:
			s.Failed++
		}
		if out.PubChemStatus == model.StageNotFound {
			s.ChemicalNotFound++
		}
	}
	if s.Total > 0 {
		s.AvgConfidence = float64(confidenceSum) / float64(s.Total)
	}
	return s
}
