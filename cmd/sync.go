package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/substancewiki/catalog-cli/internal/audit"
	"github.com/substancewiki/catalog-cli/internal/model"
	"github.com/substancewiki/catalog-cli/internal/store"
	catsync "github.com/substancewiki/catalog-cli/internal/sync"
)

var (
	syncConsumerName string
	syncAll          bool
	syncTargetURL    string
	syncStatusFilter string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate updated records to a downstream target",
	Long: `Run one sync cycle for a named consumer, or --all configured consumers.

Each consumer keeps a forward-only cursor over substance update timestamps.
A cycle fetches one page of records updated after the cursor, replicates
them to the target, and advances the cursor past every record that
replicated successfully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !syncAll && syncConsumerName == "" {
			return eris.New("pass --consumer or --all")
		}

		source, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer source.Close()

		targetURL := syncTargetURL
		if targetURL == "" {
			targetURL = cfg.Sync.TargetURL
		}
		if targetURL == "" {
			return eris.New("no sync target: set --target-url or sync.target_url")
		}
		target, err := initStoreAt(ctx, targetURL)
		if err != nil {
			return eris.Wrap(err, "open sync target")
		}
		defer target.Close()

		if err := target.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate sync target")
		}

		names := []string{syncConsumerName}
		if syncAll {
			names = cfg.Sync.Consumers
			if len(names) == 0 {
				return eris.New("--all given but sync.consumers is empty")
			}
		}

		if err := runConsumers(ctx, names, source, target); err != nil {
			return err
		}

		fmt.Println("Sync complete")
		return nil
	},
}

// runConsumers executes one cycle per consumer concurrently. Consumers are
// independent by construction: each holds its own cursor row.
func runConsumers(ctx context.Context, names []string, source store.Store, target catsync.Target) error {
	sink := audit.NewWebhookSink(cfg.Audit.WebhookURL)

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		consumer := catsync.NewConsumer(
			name,
			cfg.Sync.EntityType,
			source,
			target,
			model.SubstanceStatus(syncStatusFilter),
			cfg.Sync.PageSize,
		)
		g.Go(func() error {
			run, err := consumer.Run(ctx)
			if run != nil {
				emitSyncAudit(ctx, sink, name, run)
			}
			if err != nil {
				return eris.Wrapf(err, "consumer %s", name)
			}
			zap.L().Info("consumer finished",
				zap.String("consumer", name),
				zap.Int("processed", run.Processed),
				zap.Int("failed", run.Failed),
			)
			return nil
		})
	}
	return g.Wait()
}

func emitSyncAudit(ctx context.Context, sink audit.Sink, consumer string, run *model.SyncRun) {
	err := sink.Emit(ctx, audit.Event{
		Kind: "sync_run_completed",
		Detail: map[string]any{
			"consumer":  consumer,
			"status":    run.Status,
			"processed": run.Processed,
			"failed":    run.Failed,
		},
	})
	if err != nil {
		zap.L().Warn("audit emit failed", zap.Error(err))
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncConsumerName, "consumer", "", "consumer name")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "run every consumer from sync.consumers")
	syncCmd.Flags().StringVar(&syncTargetURL, "target-url", "", "target DSN (default from config)")
	syncCmd.Flags().StringVar(&syncStatusFilter, "status", "", "replicate only records in this editorial status")
	rootCmd.AddCommand(syncCmd)
}
