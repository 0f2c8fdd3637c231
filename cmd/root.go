package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/config"
	"github.com/education-data-collective/EDC-Processor-sub001/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "edc-cli",
	Short: "School location enrichment pipeline",
	Long:  "Geocodes school locations, fetches drive-time catchment polygons, computes nearby-school relationships, and derives enrollment metrics.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore connects the Postgres pool from config.
func openStore(ctx context.Context) (*store.Postgres, error) {
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
