package enrich

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/pkg/pubchem"
	"github.com/substancewiki/catalog-cli/pkg/wikidata"
)

func newTestOrchestrator(ms *memStore, wd *stubWikidata, pc *stubPubChem, anthropicResponses []string) *Orchestrator {
	var chem *ChemicalConnector
	if pc != nil {
		chem = NewChemicalConnector(pc, 0)
	} else {
		chem = NewChemicalConnector(nil, 0)
	}
	var gen *GenerativeConnector
	if anthropicResponses != nil {
		gen = NewGenerativeConnector(&scriptedAnthropicClient{responses: anthropicResponses}, "test-model", 0, 0, nil)
	} else {
		gen = NewGenerativeConnector(nil, "test-model", 0, 0, nil)
	}
	return NewOrchestrator(ms, wd, chem, gen, nil, 0)
}

func kratomStubs() (*stubWikidata, *stubPubChem) {
	wd := &stubWikidata{entities: map[string]*wikidata.Entity{
		"Q223083": {
			QID:         "Q223083",
			Label:       "Kratom",
			Description: "tropical evergreen tree in the coffee family",
			PubChemCID:  "3034396",
		},
	}}
	pc := &stubPubChem{compounds: map[string]*pubchem.Compound{
		"3034396": {
			CID:             3034396,
			Formula:         "C23H30N2O4",
			MolecularWeight: 398.5,
			IUPACName:       "methyl (16E)-9,17-dimethoxy...",
			SMILES:          "CC...",
			Synonyms:        []string{"Mitragynine", "Mitragyna speciosa alkaloid"},
		},
	}}
	return wd, pc
}

func TestEnrichBatch_FullStack(t *testing.T) {
	ms := newMemStore()
	wd, pc := kratomStubs()
	o := newTestOrchestrator(ms, wd, pc, []string{validDraftJSON})

	resp, err := o.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{QID: "Q223083", Label: "kratom"}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	out := resp.Items[0]
	assert.Equal(t, model.StageOK, out.WikidataStatus)
	assert.Equal(t, model.StageOK, out.PubChemStatus)
	assert.Equal(t, model.StageOK, out.AIStatus)
	assert.Equal(t, model.DBInserted, out.DBStatus)
	assert.Equal(t, 100, out.Confidence)
	assert.Equal(t, "kratom", out.Slug)
	assert.NotEmpty(t, resp.RunID)

	stored, err := ms.GetBySlug(context.Background(), "kratom")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "C23H30N2O4", stored.ChemicalFormula)
	assert.Equal(t, int64(3034396), stored.PubChemCID)
	require.NotNil(t, stored.Enrichment)
	require.NotNil(t, stored.Enrichment.Generative)
	// SMILES has no column in the test schema, so it overflows into extra.
	assert.Equal(t, "CC...", stored.Extra["smiles"])
	// Chemical synonyms become alias rows.
	assert.Equal(t, stored.ID, ms.aliases["mitragynine"])
}

func TestEnrichBatch_SourceOnlyConfidence(t *testing.T) {
	ms := newMemStore()
	wd, _ := kratomStubs()
	pc := &stubPubChem{compounds: map[string]*pubchem.Compound{}}
	o := newTestOrchestrator(ms, wd, pc, nil)

	resp, err := o.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{QID: "Q223083", Label: "kratom"}},
	})

	require.NoError(t, err)
	out := resp.Items[0]
	assert.Equal(t, model.StageOK, out.WikidataStatus)
	assert.Equal(t, model.StageNotFound, out.PubChemStatus)
	assert.Equal(t, model.StageSkipped, out.AIStatus)
	// Validated source with a description and nothing else scores 30.
	assert.Equal(t, 30, out.Confidence)
	assert.Equal(t, 1, resp.Summary.ChemicalNotFound)
}

func TestEnrichBatch_ItemIsolation(t *testing.T) {
	ms := newMemStore()
	ms.failSlugs["item-2"] = true
	o := newTestOrchestrator(ms, nil, nil, nil)

	items := make([]model.CandidateItem, 5)
	for i := range items {
		items[i] = model.CandidateItem{Label: fmt.Sprintf("Item %d", i)}
	}
	resp, err := o.EnrichBatch(context.Background(), model.EnrichRequest{Items: items})

	require.NoError(t, err)
	require.Len(t, resp.Items, 5)
	assert.Equal(t, 4, resp.Summary.Inserted)
	assert.Equal(t, 1, resp.Summary.Failed)
	assert.Equal(t, model.DBFailed, resp.Items[2].DBStatus)
	assert.NotEmpty(t, resp.Items[2].Error)
	for i, out := range resp.Items {
		if i == 2 {
			continue
		}
		assert.Equal(t, model.DBInserted, out.DBStatus, "item %d", i)
	}
}

func TestEnrichBatch_DryRunWritesNothing(t *testing.T) {
	ms := newMemStore()
	wd, pc := kratomStubs()
	o := newTestOrchestrator(ms, wd, pc, []string{validDraftJSON})

	req := model.EnrichRequest{
		Items:  []model.CandidateItem{{QID: "Q223083", Label: "kratom"}},
		DryRun: true,
	}
	resp, err := o.EnrichBatch(context.Background(), req)

	require.NoError(t, err)
	out := resp.Items[0]
	// The full pipeline still runs; only persistence is skipped.
	assert.Equal(t, model.StageOK, out.WikidataStatus)
	assert.Equal(t, model.StageOK, out.PubChemStatus)
	assert.Equal(t, model.StageOK, out.AIStatus)
	assert.Equal(t, 100, out.Confidence)
	assert.Equal(t, model.DBSkipped, out.DBStatus)
	assert.Zero(t, ms.inserts)
	assert.Zero(t, ms.updates)
}

func TestEnrichBatch_Idempotent(t *testing.T) {
	ms := newMemStore()
	wd, pc := kratomStubs()

	o1 := newTestOrchestrator(ms, wd, pc, []string{validDraftJSON})
	first, err := o1.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{QID: "Q223083", Label: "kratom"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.DBInserted, first.Items[0].DBStatus)

	o2 := newTestOrchestrator(ms, wd, pc, []string{validDraftJSON})
	second, err := o2.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{QID: "Q223083", Label: "Kratom "}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.DBUpdated, second.Items[0].DBStatus)
	assert.Equal(t, first.Items[0].SubstanceID, second.Items[0].SubstanceID)
	assert.Equal(t, 1, ms.inserts)
}

func TestEnrichBatch_CapExceeded(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil, nil, nil)
	items := make([]model.CandidateItem, model.MaxBatchItems+1)
	for i := range items {
		items[i] = model.CandidateItem{Label: fmt.Sprintf("Item %d", i)}
	}

	_, err := o.EnrichBatch(context.Background(), model.EnrichRequest{Items: items})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds cap")
}

func TestEnrichBatch_EmptyBatch(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), nil, nil, nil)
	_, err := o.EnrichBatch(context.Background(), model.EnrichRequest{})
	assert.Error(t, err)
}

func TestEnrichBatch_ColumnFetchFailureAbortsRun(t *testing.T) {
	ms := newMemStore()
	ms.columnsErr = eris.New("connection refused")
	o := newTestOrchestrator(ms, nil, nil, nil)

	_, err := o.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{Label: "Kratom"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "column allowlist")
}

func TestEnrichBatch_MissingIdentityFailsItem(t *testing.T) {
	o := newTestOrchestrator(newMemStore(), &stubWikidata{}, nil, nil)

	resp, err := o.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{QID: "Q999", Label: ""}},
	})

	require.NoError(t, err)
	out := resp.Items[0]
	assert.Equal(t, model.StageFailed, out.WikidataStatus)
	assert.Equal(t, model.DBFailed, out.DBStatus)
	assert.Contains(t, out.Error, "no usable name")
}

func TestEnrichBatch_SourceFailureDegradesNotKills(t *testing.T) {
	ms := newMemStore()
	o := newTestOrchestrator(ms, &stubWikidata{err: eris.New("api down")}, nil, nil)

	resp, err := o.EnrichBatch(context.Background(), model.EnrichRequest{
		Items: []model.CandidateItem{{QID: "Q223083", Label: "Kratom"}},
	})

	require.NoError(t, err)
	out := resp.Items[0]
	assert.Equal(t, model.StageFailed, out.WikidataStatus)
	assert.Equal(t, model.DBInserted, out.DBStatus)
	assert.Equal(t, 0, out.Confidence)
}

func TestEnrichBatch_SkipFlags(t *testing.T) {
	ms := newMemStore()
	wd, pc := kratomStubs()
	o := newTestOrchestrator(ms, wd, pc, []string{validDraftJSON})

	resp, err := o.EnrichBatch(context.Background(), model.EnrichRequest{
		Items:          []model.CandidateItem{{QID: "Q223083", Label: "kratom"}},
		SkipChemical:   true,
		SkipGenerative: true,
	})

	require.NoError(t, err)
	out := resp.Items[0]
	assert.Equal(t, model.StageSkipped, out.PubChemStatus)
	assert.Equal(t, model.StageSkipped, out.AIStatus)
	assert.Equal(t, 30, out.Confidence)
}
