package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

var nearbyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing summary for a data year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dataYear, _ := cmd.Flags().GetInt("data-year")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		summary, err := nearby.NewPostgresStore(pg.Pool()).Summary(ctx, dataYear)
		if err != nil {
			return err
		}

		fmt.Printf("Summary for year %d:\n", dataYear)
		fmt.Printf("  relationships: %d across %d locations\n", summary.TotalRelationships, summary.UniqueLocations)
		fmt.Printf("  nearby records: %d (%d unique schools)\n", summary.TotalNearby, summary.UniqueSchools)
		if summary.EarliestProcessed != nil && summary.LatestProcessed != nil {
			fmt.Printf("  processed between %s and %s\n",
				summary.EarliestProcessed.Format("2006-01-02 15:04"),
				summary.LatestProcessed.Format("2006-01-02 15:04"),
			)
		}
		for _, b := range summary.Breakdown {
			fmt.Printf("  %2d min: %d polygons, %d nearby schools\n", b.DriveTime, b.PolygonCount, b.NearbySchoolCount)
		}
		return nil
	},
}

func init() {
	nearbyStatusCmd.Flags().Int("data-year", 0, "data year to summarize (required)")
	_ = nearbyStatusCmd.MarkFlagRequired("data-year")
	nearbyCmd.AddCommand(nearbyStatusCmd)
}
