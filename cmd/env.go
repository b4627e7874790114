package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/substancewiki/catalog-cli/internal/audit"
	"github.com/substancewiki/catalog-cli/internal/canonical"
	"github.com/substancewiki/catalog-cli/internal/enrich"
	"github.com/substancewiki/catalog-cli/internal/safety"
	"github.com/substancewiki/catalog-cli/internal/store"
	"github.com/substancewiki/catalog-cli/pkg/anthropic"
	"github.com/substancewiki/catalog-cli/pkg/pubchem"
	"github.com/substancewiki/catalog-cli/pkg/wikidata"
)

// pipelineEnv bundles everything a command needs to run enrichment.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *enrich.Orchestrator
	Importer     *enrich.Importer
	Synonyms     *canonical.SynonymTable
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	return initStoreAt(ctx, cfg.Store.DatabaseURL)
}

// initStoreAt opens a store for the given DSN using the configured driver.
// Sync targets reuse this with their own connection string.
func initStoreAt(ctx context.Context, dsn string) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, dsn, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline wires the store, provider clients, and pipeline components.
// A missing Anthropic key is not an error: the generative stage degrades to
// skipped.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	wd := wikidata.NewClient(
		wikidata.WithBaseURL(cfg.Wikidata.BaseURL),
		wikidata.WithUserAgent(cfg.Wikidata.UserAgent),
		wikidata.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Wikidata.TimeoutSecs) * time.Second,
		}),
	)

	pc := pubchem.NewClient(
		pubchem.WithBaseURL(cfg.PubChem.BaseURL),
		pubchem.WithTimeout(time.Duration(cfg.PubChem.TimeoutSecs)*time.Second),
		pubchem.WithRateLimit(cfg.PubChem.RateLimit),
	)

	var generative anthropic.Client
	if cfg.Anthropic.Key != "" {
		generative = anthropic.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Info("no anthropic key configured, generative stage will be skipped")
	}

	synonyms, err := canonical.LoadSynonymFile(cfg.Enrich.SynonymFile)
	if err != nil {
		st.Close()
		return nil, eris.Wrap(err, "load synonym table")
	}

	chemical := enrich.NewChemicalConnector(pc, time.Duration(cfg.PubChem.TimeoutSecs)*time.Second)
	draft := enrich.NewGenerativeConnector(
		generative,
		cfg.Anthropic.Model,
		cfg.Anthropic.MaxTokens,
		time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second,
		safety.NewRuleChecker(),
	)
	sink := audit.NewWebhookSink(cfg.Audit.WebhookURL)

	orch := enrich.NewOrchestrator(st, wd, chemical, draft, sink, cfg.Enrich.MaxBatchSize)
	imp := enrich.NewImporter(st, wd, orch, synonyms, cfg.Enrich.MaxBatchSize)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		Importer:     imp,
		Synonyms:     synonyms,
	}, nil
}
