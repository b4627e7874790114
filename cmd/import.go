package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/model"
)

var (
	importCSVPath      string
	importNamesPath    string
	importFetchSources bool
	importEnrich       bool
	importDraft        bool
)

var importCmd = &cobra.Command{
	Use:   "import [name]...",
	Short: "Bulk-import substance names",
	Long: `Import a list of substance names as draft catalogue records.

Names come from positional arguments, --names (one per line, tab or comma
separated synonyms), or --csv (header with "name" and optional "synonyms"
columns). Duplicates and known synonyms collapse to one record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := buildImportRequest(args)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Importer.Import(ctx, req)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int("total", resp.Summary.Total),
			zap.Int("created", resp.Summary.Created),
			zap.Int("updated", resp.Summary.Updated),
			zap.Int("skipped", resp.Summary.Skipped),
			zap.Int("failed", resp.Summary.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func buildImportRequest(args []string) (model.ImportRequest, error) {
	req := model.ImportRequest{
		ImportSource: model.ImportSourcePaste,
		Options: model.ImportOptions{
			FetchSources:    importFetchSources,
			GenerateDraft:   importDraft,
			QueueEnrichment: importEnrich,
		},
	}

	switch {
	case importCSVPath != "":
		content, err := os.ReadFile(importCSVPath)
		if err != nil {
			return req, eris.Wrapf(err, "read csv %s", importCSVPath)
		}
		req.ImportSource = model.ImportSourceCSV
		req.CSVContent = string(content)
	case importNamesPath != "":
		content, err := os.ReadFile(importNamesPath)
		if err != nil {
			return req, eris.Wrapf(err, "read names file %s", importNamesPath)
		}
		req.Names = strings.Split(string(content), "\n")
	case len(args) > 0:
		req.Names = args
	default:
		return req, eris.New("no input: pass names, --names, or --csv")
	}
	return req, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file")
	importCmd.Flags().StringVar(&importNamesPath, "names", "", "path to newline-separated name list")
	importCmd.Flags().BoolVar(&importFetchSources, "fetch-sources", false, "match each name to a Wikidata entity")
	importCmd.Flags().BoolVar(&importEnrich, "enrich", false, "run the enrichment pipeline on imported names")
	importCmd.Flags().BoolVar(&importDraft, "draft", false, "generate AI drafts during enrichment (implies --enrich stages)")
	rootCmd.AddCommand(importCmd)
}
