package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/insights/config"
	"example.com/backstage/services/insights/internal/api"
	"example.com/backstage/services/insights/internal/cache"
	"example.com/backstage/services/insights/internal/database"
	"example.com/backstage/services/insights/internal/metrics"
	"example.com/backstage/services/insights/internal/repositories"
	"example.com/backstage/services/insights/internal/search"
	"example.com/backstage/services/insights/internal/services"
	"example.com/backstage/services/insights/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the dashboard API server",
	Long:  `Start the HTTP API server that serves the pre-aggregated metrics tables`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	server := api.NewServer(cfg, insightsService, ops, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
