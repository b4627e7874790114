package main

import (
	"encoding/json"
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/model"
)

var (
	enrichDryRun   bool
	enrichSkipChem bool
	enrichSkipAI   bool
	enrichRunID    string
)

var qidRe = regexp.MustCompile(`^Q\d+$`)

var enrichCmd = &cobra.Command{
	Use:   "enrich [QID|name]...",
	Short: "Enrich a batch of substances",
	Long: `Enrich up to 50 substances in one batch.

Each argument is either a Wikidata QID (Q12345) or a substance name.
QIDs are validated against the source before enrichment; bare names skip
source validation and go straight to the chemical and generative stages.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Orchestrator.EnrichBatch(ctx, model.EnrichRequest{
			Items:          itemsFromArgs(args),
			DryRun:         enrichDryRun,
			SkipChemical:   enrichSkipChem,
			SkipGenerative: enrichSkipAI,
			RunID:          enrichRunID,
		})
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		zap.L().Info("enrichment complete",
			zap.String("run_id", resp.RunID),
			zap.Int("inserted", resp.Summary.Inserted),
			zap.Int("updated", resp.Summary.Updated),
			zap.Int("failed", resp.Summary.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

// itemsFromArgs maps CLI arguments onto candidate items: QIDs carry source
// identity, anything else is a bare name.
func itemsFromArgs(args []string) []model.CandidateItem {
	items := make([]model.CandidateItem, 0, len(args))
	for _, arg := range args {
		if qidRe.MatchString(arg) {
			items = append(items, model.CandidateItem{QID: arg})
		} else {
			items = append(items, model.CandidateItem{Label: arg})
		}
	}
	return items
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "run the full pipeline without writing to the store")
	enrichCmd.Flags().BoolVar(&enrichSkipChem, "skip-chemical", false, "skip the PubChem stage")
	enrichCmd.Flags().BoolVar(&enrichSkipAI, "skip-ai", false, "skip the generative stage")
	enrichCmd.Flags().StringVar(&enrichRunID, "run-id", "", "run identifier (generated when empty)")
	rootCmd.AddCommand(enrichCmd)
}
