package model

import "time"

// SubstanceStatus represents the editorial state of a catalogue record.
type SubstanceStatus string

const (
	StatusDraft     SubstanceStatus = "draft"
	StatusReview    SubstanceStatus = "review"
	StatusPublished SubstanceStatus = "published"
)

// StageStatus is the per-stage outcome recorded on an EnrichmentOutcome.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
	StageNotFound StageStatus = "not_found"
	StageError    StageStatus = "error"
)

// DBStatus is the persistence outcome for a single item.
type DBStatus string

const (
	DBInserted DBStatus = "inserted"
	DBUpdated  DBStatus = "updated"
	DBSkipped  DBStatus = "skipped"
	DBFailed   DBStatus = "failed"
)

// CandidateItem is a single catalogue entry proposed for import,
// as returned by the Wikidata listing query.
type CandidateItem struct {
	QID         string `json:"qid"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	PubChemCID  string `json:"pubchem_cid,omitempty"`
}

// DeduplicatedEntry is one name surviving batch deduplication.
// OriginalName preserves the first-seen display casing.
type DeduplicatedEntry struct {
	CanonicalName string   `json:"canonical_name"`
	Slug          string   `json:"slug"`
	OriginalName  string   `json:"original_name"`
	Synonyms      []string `json:"synonyms,omitempty"`
}

// ChemicalProperties holds the structured output of the PubChem lookup.
type ChemicalProperties struct {
	CID             int64    `json:"cid,omitempty"`
	Formula         string   `json:"formula,omitempty"`
	MolecularWeight float64  `json:"molecular_weight,omitempty"`
	IUPACName       string   `json:"iupac_name,omitempty"`
	SMILES          string   `json:"smiles,omitempty"`
	Synonyms        []string `json:"synonyms,omitempty"`
}

// GenerativeDraft is the fixed eight-field qualitative schema produced by
// the generative connector. Every field is free text; Sources lists the
// citations the model claims to have drawn from.
type GenerativeDraft struct {
	Summary      string   `json:"summary"`
	Effects      string   `json:"effects"`
	Duration     string   `json:"duration"`
	Onset        string   `json:"onset"`
	Risks        string   `json:"risks"`
	Interactions string   `json:"interactions"`
	LegalStatus  string   `json:"legal_status"`
	History      string   `json:"history"`
	Sources      []string `json:"sources"`
}

// Enrichment is the merged payload of both optional providers.
type Enrichment struct {
	Chemical   *ChemicalProperties `json:"chemical,omitempty"`
	Generative *GenerativeDraft    `json:"generative,omitempty"`
}

// Substance is the persisted catalogue record.
type Substance struct {
	ID              int64           `json:"id"`
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Category        string          `json:"category,omitempty"`
	DrugClass       string          `json:"drug_class,omitempty"`
	WikidataID      string          `json:"wikidata_id,omitempty"`
	PubChemCID      int64           `json:"pubchem_cid,omitempty"`
	ChemicalFormula string          `json:"chemical_formula,omitempty"`
	MolecularWeight float64         `json:"molecular_weight,omitempty"`
	IUPACName       string          `json:"iupac_name,omitempty"`
	Enrichment      *Enrichment     `json:"enrichment,omitempty"`
	Confidence      int             `json:"confidence"`
	Status          SubstanceStatus `json:"status"`
	Extra           map[string]any  `json:"extra,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Alias maps an alternative name onto a substance.
type Alias struct {
	ID          int64  `json:"id"`
	SubstanceID int64  `json:"substance_id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Source      string `json:"source,omitempty"`
}

// EnrichmentOutcome is the per-item result of a batch enrichment run.
// Every stage carries its own status so a partial failure in one provider
// never masks the others.
type EnrichmentOutcome struct {
	QID            string      `json:"qid"`
	Name           string      `json:"name"`
	Slug           string      `json:"slug,omitempty"`
	WikidataStatus StageStatus `json:"wikidata_status"`
	PubChemStatus  StageStatus `json:"pubchem_status"`
	AIStatus       StageStatus `json:"ai_status"`
	DBStatus       DBStatus    `json:"db_status,omitempty"`
	Confidence     int         `json:"confidence_score"`
	SubstanceID    int64       `json:"substance_id,omitempty"`
	Error          string      `json:"error,omitempty"`
}
