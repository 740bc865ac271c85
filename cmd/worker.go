package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/insights/config"
	"example.com/backstage/services/insights/internal/cache"
	"example.com/backstage/services/insights/internal/database"
	"example.com/backstage/services/insights/internal/messaging"
	"example.com/backstage/services/insights/internal/metrics"
	"example.com/backstage/services/insights/internal/repositories"
	"example.com/backstage/services/insights/internal/search"
	"example.com/backstage/services/insights/internal/services"
	"example.com/backstage/services/insights/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the event consumer",
	Long:  `Start the background worker that consumes order events from Azure Service Bus and maintains the metrics tables`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return err
	}

	var elasticClient *search.ElasticClient
	if cfg.Elastic.Enabled {
		elasticClient, err = search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
			elasticClient = nil
		}
	}

	ops := metrics.NewMetrics()

	repo := repositories.New(db, readOnlyDB)
	insightsService := services.NewInsightsService(repo, redisCache, elasticClient, ops, tracer)
	processor := messaging.NewProcessor(insightsService, ops)

	azureBus, err := messaging.NewAzureServiceBus(cfg.Azure, cfg.Worker.BatchSize)
	if err != nil {
		return err
	}
	defer azureBus.Close()

	ops.SetHealthCheck("consumer", true)

	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Azure Service Bus consumer")
		err := azureBus.ProcessMessages(ctx, processor)
		if err != nil {
			ops.SetHealthCheck("consumer", false)
		}
		return err
	})

	// Periodic cache warmer so dashboards stay fast between events.
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.CacheRefreshInterval),
			gocron.NewTask(func() {
				if err := insightsService.RefreshTodaySnapshot(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to refresh daily snapshot cache")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
