package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPayload(t *testing.T) {
	allowed := map[string]bool{"chemical_formula": true, "iupac_name": true}
	payload := map[string]any{
		"chemical_formula": "C23H30N2O4",
		"iupac_name":       "methyl ...",
		"smiles":           "CCC1CN2CCC3=...",
		"vendor_notes":     "should not be dropped",
	}

	known, overflow := SplitPayload(payload, allowed)

	assert.Equal(t, map[string]any{
		"chemical_formula": "C23H30N2O4",
		"iupac_name":       "methyl ...",
	}, known)
	assert.Equal(t, map[string]any{
		"smiles":       "CCC1CN2CCC3=...",
		"vendor_notes": "should not be dropped",
	}, overflow)
}

func TestSplitPayload_AllUnknown(t *testing.T) {
	known, overflow := SplitPayload(map[string]any{"a": 1, "b": 2}, map[string]bool{})
	assert.Empty(t, known)
	assert.Len(t, overflow, 2)
}

func TestSplitPayload_Deterministic(t *testing.T) {
	allowed := map[string]bool{"x": true}
	payload := map[string]any{"x": 1, "y": 2}

	k1, o1 := SplitPayload(payload, allowed)
	k2, o2 := SplitPayload(payload, allowed)

	assert.Equal(t, k1, k2)
	assert.Equal(t, o1, o2)
}

func TestSplitPayload_Empty(t *testing.T) {
	known, overflow := SplitPayload(nil, map[string]bool{"x": true})
	assert.Empty(t, known)
	assert.Empty(t, overflow)
}
