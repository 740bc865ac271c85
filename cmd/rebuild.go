package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/insights/config"
	"example.com/backstage/services/insights/internal/database"
	"example.com/backstage/services/insights/internal/metrics"
	"example.com/backstage/services/insights/internal/repositories"
	"example.com/backstage/services/insights/internal/services"
	"example.com/backstage/services/insights/internal/tracing"
)

var rebuildBatchSize int

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the metrics tables from the event ledger",
	Long: `Empty the daily, hourly and product metrics tables and re-derive them by
replaying every ledgered event, all inside one transaction. The ledger is the
replay source of truth, so this is safe to run at any time.`,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().IntVar(&rebuildBatchSize, "batch-size", 500, "number of ledger rows read per page")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return err
	}

	repo := repositories.New(db, readOnlyDB)
	insightsService := services.NewInsightsService(repo, nil, nil, metrics.NewMetrics(), tracer)

	replayed, err := insightsService.RebuildMetrics(ctx, rebuildBatchSize)
	if err != nil {
		return err
	}

	log.Info().Int64("events_replayed", replayed).Msg("Rebuild complete")
	return nil
}
