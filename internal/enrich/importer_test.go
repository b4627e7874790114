package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substancewiki/catalog-cli/internal/canonical"
	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/pkg/wikidata"
)

func TestImport_PasteMinimal(t *testing.T) {
	ms := newMemStore()
	imp := NewImporter(ms, nil, nil, nil, 0)

	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"Kratom", "kratom ", "KRATOM (extract)", "Psilocybin"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Summary.Total)
	assert.Equal(t, 2, resp.Summary.Created)

	kratom, err := ms.GetBySlug(context.Background(), "kratom")
	require.NoError(t, err)
	require.NotNil(t, kratom)
	assert.Equal(t, "Kratom", kratom.Name)
	assert.Equal(t, model.StatusDraft, kratom.Status)
}

func TestImport_PasteWithSynonymColumns(t *testing.T) {
	ms := newMemStore()
	imp := NewImporter(ms, nil, nil, nil, 0)

	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"Kratom\tMitragyna speciosa\tketum"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Summary.Created)

	kratom, err := ms.GetBySlug(context.Background(), "kratom")
	require.NoError(t, err)
	assert.Equal(t, kratom.ID, ms.aliases["mitragyna-speciosa"])
	assert.Equal(t, kratom.ID, ms.aliases["ketum"])
}

func TestImport_SynonymColumnsSurviveNameRemap(t *testing.T) {
	ms := newMemStore()
	table := canonical.NewSynonymTable([]canonical.SynonymEntry{
		{Canonical: "Kratom", Aliases: []string{"biak-biak"}},
	})
	imp := NewImporter(ms, nil, nil, table, 0)

	// The row's own name resolves to kratom; its synonym column must land
	// on the resolved record, not on a "biak-biak" key nothing reads.
	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"biak-biak\tketum"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Summary.Created)

	kratom, err := ms.GetBySlug(context.Background(), "kratom")
	require.NoError(t, err)
	require.NotNil(t, kratom)
	assert.Equal(t, kratom.ID, ms.aliases["ketum"])
}

func TestImport_CSV(t *testing.T) {
	ms := newMemStore()
	imp := NewImporter(ms, nil, nil, nil, 0)

	csv := "name,synonyms\nKratom,Mitragyna speciosa;ketum\nPsilocybin,\n"
	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourceCSV,
		CSVContent:   csv,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Summary.Created)
	assert.Equal(t, int64(0), ms.aliases["psilocybin"])
	assert.NotZero(t, ms.aliases["ketum"])
}

func TestImport_CSVMissingNameColumn(t *testing.T) {
	imp := NewImporter(newMemStore(), nil, nil, nil, 0)
	_, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourceCSV,
		CSVContent:   "title\nKratom\n",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name column")
}

func TestImport_SynonymTableCollapsesNames(t *testing.T) {
	ms := newMemStore()
	table := canonical.NewSynonymTable([]canonical.SynonymEntry{
		{Canonical: "Kratom", Aliases: []string{"ketum", "biak-biak"}},
	})
	imp := NewImporter(ms, nil, nil, table, 0)

	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"ketum", "biak-biak", "Kratom"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Summary.Total)
	assert.Equal(t, "kratom", resp.Results[0].Slug)
}

func TestImport_FetchSources(t *testing.T) {
	ms := newMemStore()
	wd := &stubWikidata{searches: map[string][]wikidata.SearchResult{
		"kratom": {{QID: "Q223083", Label: "Kratom"}},
	}}
	imp := NewImporter(ms, wd, nil, nil, 0)

	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"Kratom", "Unknownium"},
		Options:      model.ImportOptions{FetchSources: true},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Summary.Created)

	kratom, err := ms.GetBySlug(context.Background(), "kratom")
	require.NoError(t, err)
	assert.Equal(t, "Q223083", kratom.WikidataID)

	unknown, err := ms.GetBySlug(context.Background(), "unknownium")
	require.NoError(t, err)
	assert.Empty(t, unknown.WikidataID)
}

func TestImport_QueueEnrichment(t *testing.T) {
	ms := newMemStore()
	wd, pc := kratomStubs()
	wd.searches = map[string][]wikidata.SearchResult{
		"kratom": {{QID: "Q223083", Label: "Kratom"}},
	}
	orch := newTestOrchestrator(ms, wd, pc, nil)
	imp := NewImporter(ms, wd, orch, nil, 0)

	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"Kratom"},
		Options:      model.ImportOptions{FetchSources: true, QueueEnrichment: true},
	})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, model.DBInserted, resp.Results[0].Status)

	kratom, err := ms.GetBySlug(context.Background(), "kratom")
	require.NoError(t, err)
	assert.Equal(t, "C23H30N2O4", kratom.ChemicalFormula)
}

func TestImport_QueueEnrichmentChunks(t *testing.T) {
	ms := newMemStore()
	orch := newTestOrchestrator(ms, nil, nil, nil)
	imp := NewImporter(ms, nil, orch, nil, 2)

	names := []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon"}
	resp, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        names,
		Options:      model.ImportOptions{QueueEnrichment: true},
	})

	require.NoError(t, err)
	assert.Equal(t, 5, resp.Summary.Total)
	assert.Equal(t, 5, resp.Summary.Created)
}

func TestImport_QueueEnrichmentWithoutOrchestrator(t *testing.T) {
	imp := NewImporter(newMemStore(), nil, nil, nil, 0)
	_, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"Kratom"},
		Options:      model.ImportOptions{QueueEnrichment: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no orchestrator")
}

func TestImport_EmptyInput(t *testing.T) {
	imp := NewImporter(newMemStore(), nil, nil, nil, 0)
	_, err := imp.Import(context.Background(), model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"  ", ""},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no names")
}

func TestImport_Rerun(t *testing.T) {
	ms := newMemStore()
	imp := NewImporter(ms, nil, nil, nil, 0)
	req := model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Names:        []string{"Kratom"},
	}

	first, err := imp.Import(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Summary.Created)

	second, err := imp.Import(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Summary.Created)
	assert.Equal(t, 1, second.Summary.Updated)
	assert.Equal(t, 1, ms.inserts)
}
