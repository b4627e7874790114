// Package enrich implements the substance enrichment pipeline: per-item
// orchestration across the source, chemical, and generative stages,
// confidence scoring, payload sanitization, and the idempotent writer.
package enrich

import "github.com/substancewiki/catalog-cli/internal/model"

// ScoreInput captures the stage outcomes and data-completeness flags the
// confidence score is derived from.
type ScoreInput struct {
	SourceValidated   bool
	HasDescription    bool
	ChemicalStatus    model.StageStatus
	HasSynonyms       bool
	HasFormula        bool
	GenerativeStatus  model.StageStatus
	GenerativeHasData bool
}

// Score maps data completeness to a 0-100 confidence value. It is a pure
// function of its input; downstream curators triage low-confidence records
// on this number without re-deriving per-stage status.
//
// Weights: source validated 20, description 10 (capped 30); chemical ok 15,
// synonyms 10, formula 5 (capped 30); generative ok 40, generative failed
// with data 15, skipped 0 (capped 40).
func Score(in ScoreInput) int {
	source := 0
	if in.SourceValidated {
		source += 20
	}
	if in.HasDescription {
		source += 10
	}
	if source > 30 {
		source = 30
	}

	chemical := 0
	if in.ChemicalStatus == model.StageOK {
		chemical += 15
	}
	if in.HasSynonyms {
		chemical += 10
	}
	if in.HasFormula {
		chemical += 5
	}
	if chemical > 30 {
		chemical = 30
	}

	generative := 0
	switch {
	case in.GenerativeStatus == model.StageOK:
		generative = 40
	case in.GenerativeStatus == model.StageFailed && in.GenerativeHasData:
		generative = 15
	}
	if generative > 40 {
		generative = 40
	}

	total := source + chemical + generative
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return total
}
