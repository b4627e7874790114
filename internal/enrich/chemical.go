package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/pkg/pubchem"
)

// defaultChemicalTimeout bounds one chemical lookup. A timeout is treated
// identically to a provider error.
const defaultChemicalTimeout = 12 * time.Second

// ChemicalResult is the outcome of one chemical-properties lookup.
// A provider's "no data" response maps to not_found, distinct from error:
// the former is common and expected, the latter signals a systemic issue
// worth surfacing in aggregate stats.
type ChemicalResult struct {
	Status model.StageStatus
	Data   *model.ChemicalProperties
}

// ChemicalConnector performs best-effort PubChem lookups. It never returns
// an error: every failure mode is folded into the result status.
type ChemicalConnector struct {
	client  pubchem.Client
	timeout time.Duration
}

// NewChemicalConnector wraps a PubChem client. A nil client yields a
// connector that always reports skipped.
func NewChemicalConnector(client pubchem.Client, timeout time.Duration) *ChemicalConnector {
	if timeout <= 0 {
		timeout = defaultChemicalTimeout
	}
	return &ChemicalConnector{client: client, timeout: timeout}
}

// Fetch looks up chemical properties by reference id when available,
// falling back to a name lookup.
func (c *ChemicalConnector) Fetch(ctx context.Context, label, refID string) ChemicalResult {
	if c == nil || c.client == nil {
		return ChemicalResult{Status: model.StageSkipped}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var compound *pubchem.Compound
	var err error
	if refID != "" {
		compound, err = c.client.GetByCID(ctx, refID)
	} else {
		compound, err = c.client.GetByName(ctx, label)
	}
	if err != nil {
		if eris.Is(err, pubchem.ErrNotFound) {
			return ChemicalResult{Status: model.StageNotFound}
		}
		zap.L().Warn("enrich: chemical lookup failed",
			zap.String("label", label),
			zap.String("ref_id", refID),
			zap.Error(err),
		)
		return ChemicalResult{Status: model.StageError}
	}

	return ChemicalResult{
		Status: model.StageOK,
		Data: &model.ChemicalProperties{
			CID:             compound.CID,
			Formula:         compound.Formula,
			MolecularWeight: compound.MolecularWeight,
			IUPACName:       compound.IUPACName,
			SMILES:          compound.SMILES,
			Synonyms:        compound.Synonyms,
		},
	}
}
