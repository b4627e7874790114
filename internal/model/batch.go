package model

// MaxBatchItems caps a single enrichment invocation. Callers paginate
// across invocations for larger imports.
const MaxBatchItems = 50

// EnrichRequest is the input to a batch enrichment call.
type EnrichRequest struct {
	Items          []CandidateItem `json:"items"`
	DryRun         bool            `json:"dry_run,omitempty"`
	SkipChemical   bool            `json:"skip_chemical,omitempty"`
	SkipGenerative bool            `json:"skip_ai,omitempty"`
	RunID          string          `json:"run_id,omitempty"`
}

// BatchSummary aggregates per-item outcomes for a run.
type BatchSummary struct {
	Total            int     `json:"total"`
	Inserted         int     `json:"inserted"`
	Updated          int     `json:"updated"`
	Skipped          int     `json:"skipped"`
	Failed           int     `json:"failed"`
	ChemicalNotFound int     `json:"chemical_not_found"`
	AvgConfidence    float64 `json:"avg_confidence"`
}

// EnrichResponse is the output of a batch enrichment call.
type EnrichResponse struct {
	RunID   string              `json:"run_id"`
	Summary BatchSummary        `json:"summary"`
	Items   []EnrichmentOutcome `json:"items"`
}

// ImportSource identifies how a bulk name list arrived.
type ImportSource string

const (
	ImportSourcePaste ImportSource = "paste"
	ImportSourceCSV   ImportSource = "csv"
)

// ImportOptions controls what the bulk importer does per name.
type ImportOptions struct {
	FetchSources    bool `json:"fetch_sources,omitempty"`
	GenerateDraft   bool `json:"generate_draft,omitempty"`
	QueueEnrichment bool `json:"queue_enrichment,omitempty"`
}

// ImportRequest is the input to a bulk name-list ingestion call.
type ImportRequest struct {
	Names        []string      `json:"names,omitempty"`
	Options      ImportOptions `json:"options"`
	ImportSource ImportSource  `json:"import_source"`
	CSVContent   string        `json:"csv_content,omitempty"`
}

// ImportResult is the per-name outcome of a bulk import.
type ImportResult struct {
	Name   string   `json:"name"`
	Slug   string   `json:"slug"`
	Status DBStatus `json:"status"`
	ID     int64    `json:"id,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// ImportSummary aggregates a bulk import.
type ImportSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ImportResponse is the output of a bulk name-list ingestion call.
type ImportResponse struct {
	Summary ImportSummary  `json:"summary"`
	Results []ImportResult `json:"results"`
}
