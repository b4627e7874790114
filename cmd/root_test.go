package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"enrich", "import", "sync", "serve", "migrate"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestItemsFromArgs(t *testing.T) {
	items := itemsFromArgs([]string{"Q223083", "Kratom", "Q42", "2C-B"})

	require.Len(t, items, 4)
	assert.Equal(t, "Q223083", items[0].QID)
	assert.Empty(t, items[0].Label)
	assert.Equal(t, "Kratom", items[1].Label)
	assert.Empty(t, items[1].QID)
	assert.Equal(t, "Q42", items[2].QID)
	// Looks QID-ish but is not: stays a name.
	assert.Equal(t, "2C-B", items[3].Label)
}

func TestBuildImportRequest_NoInput(t *testing.T) {
	importCSVPath = ""
	importNamesPath = ""
	_, err := buildImportRequest(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input")
}

func TestBuildImportRequest_Args(t *testing.T) {
	importCSVPath = ""
	importNamesPath = ""
	req, err := buildImportRequest([]string{"Kratom", "Psilocybin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Kratom", "Psilocybin"}, req.Names)
}
