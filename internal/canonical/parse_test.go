package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelimited_CommaSeparated(t *testing.T) {
	rows := ParseDelimited("Kratom, Mitragyna speciosa, ketum\nKava\n\nLSD, acid")

	require.Len(t, rows, 3)
	assert.Equal(t, "Kratom", rows[0].Name)
	assert.Equal(t, []string{"Mitragyna speciosa", "ketum"}, rows[0].Synonyms)
	assert.Equal(t, "Kava", rows[1].Name)
	assert.Empty(t, rows[1].Synonyms)
	assert.Equal(t, "LSD", rows[2].Name)
	assert.Equal(t, []string{"acid"}, rows[2].Synonyms)
}

func TestParseDelimited_TabPreferred(t *testing.T) {
	// Tab-separated lines keep commas inside fields intact.
	rows := ParseDelimited("2C-B\tNexus, Bees\nDMT")

	require.Len(t, rows, 2)
	assert.Equal(t, "2C-B", rows[0].Name)
	assert.Equal(t, []string{"Nexus, Bees"}, rows[0].Synonyms)
	assert.Equal(t, "DMT", rows[1].Name)
}

func TestParseDelimited_SkipsEmptyLeadingFields(t *testing.T) {
	rows := ParseDelimited(", Kratom, ketum")

	require.Len(t, rows, 1)
	assert.Equal(t, "Kratom", rows[0].Name)
	assert.Equal(t, []string{"ketum"}, rows[0].Synonyms)
}

func TestParseCSV(t *testing.T) {
	content := "name,synonyms,notes\nKratom,Mitragyna speciosa; ketum,popular\nKava,,\n"

	rows, err := ParseCSV(content)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "Kratom", rows[0].Name)
	assert.Equal(t, []string{"Mitragyna speciosa", "ketum"}, rows[0].Synonyms)
	assert.Equal(t, "Kava", rows[1].Name)
	assert.Empty(t, rows[1].Synonyms)
}

func TestParseCSV_HeaderCaseInsensitive(t *testing.T) {
	rows, err := ParseCSV("Name,Aliases\nLSD,acid\n")
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "LSD", rows[0].Name)
	assert.Equal(t, []string{"acid"}, rows[0].Synonyms)
}

func TestParseCSV_MissingNameColumn(t *testing.T) {
	_, err := ParseCSV("id,label\n1,Kratom\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name column")
}

func TestParseCSV_Empty(t *testing.T) {
	rows, err := ParseCSV("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
