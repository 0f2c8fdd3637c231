package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

// Exit codes mirror the run classification: 0 complete, 2 partial, 1 failed.
const (
	exitComplete = 0
	exitFailed   = 1
	exitPartial  = 2
)

var nearbyProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Compute nearby-school relationships for a data year",
	Long:  "Loads the candidate index once, then processes eligible locations in batches, replacing each location's relationships atomically.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dataYear, _ := cmd.Flags().GetInt("data-year")
		locationIDs, _ := cmd.Flags().GetInt64Slice("location-ids")
		forceRefresh, _ := cmd.Flags().GetBool("force-refresh")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		limit, _ := cmd.Flags().GetInt("limit")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		nearbyCfg := cfg.Nearby
		if batchSize > 0 {
			nearbyCfg.BatchSize = batchSize
		}

		processor := nearby.NewProcessor(nearby.NewPostgresStore(pg.Pool()), nearbyCfg)
		summary, err := processor.ProcessBatch(ctx, dataYear, nearby.WorklistFilter{
			LocationIDs:  locationIDs,
			ForceRefresh: forceRefresh,
			Limit:        limit,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d/%d locations (%d skipped, %d failed), success rate %.1f%%, status %s\n",
			summary.Succeeded, summary.Total, summary.Skipped, summary.Failed,
			summary.SuccessRate, summary.Status,
		)
		for _, o := range summary.Outcomes {
			if o.Status == nearby.StatusFailed {
				zap.L().Warn("location failed",
					zap.Int64("location_id", o.LocationID),
					zap.Error(o.Err),
				)
			}
		}

		switch summary.Status {
		case nearby.StatusComplete:
			return nil
		case nearby.StatusPartial:
			os.Exit(exitPartial)
		default:
			os.Exit(exitFailed)
		}
		return nil
	},
}

func init() {
	nearbyProcessCmd.Flags().Int("data-year", 0, "data year to process (required)")
	nearbyProcessCmd.Flags().Int64Slice("location-ids", nil, "restrict to specific location IDs")
	nearbyProcessCmd.Flags().Bool("force-refresh", false, "reprocess locations that already have relationships")
	nearbyProcessCmd.Flags().Int("batch-size", 0, "locations per batch (default from config)")
	nearbyProcessCmd.Flags().Int("limit", 0, "cap the number of locations processed")
	_ = nearbyProcessCmd.MarkFlagRequired("data-year")
	nearbyCmd.AddCommand(nearbyProcessCmd)
}
