package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "Order insights service maintaining pre-aggregated dashboard metrics",
	Long: `A service that consumes order and payment events from Azure Service Bus,
records each one exactly once, folds it into daily, hourly and per-product
metrics tables, and serves those tables over a dashboard API.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
