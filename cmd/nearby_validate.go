package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

var nearbyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate processed relationships",
	Long:  "With --location-id, reports the persisted state of one location; otherwise reports epoch-level completeness.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dataYear, _ := cmd.Flags().GetInt("data-year")
		locationID, _ := cmd.Flags().GetInt64("location-id")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		st := nearby.NewPostgresStore(pg.Pool())

		if locationID > 0 {
			result, err := st.Validate(ctx, locationID, dataYear)
			if err != nil {
				return err
			}
			fmt.Printf("Location %d, year %d:\n", locationID, dataYear)
			fmt.Printf("  valid: %v\n", result.Valid)
			fmt.Printf("  polygons: %d (drive times %v)\n", result.PolygonCount, result.DriveTimes)
			fmt.Printf("  nearby schools: %d (%d unique)\n", result.SchoolCount, result.UniqueSchools)
			if len(result.MissingDriveTimes) > 0 {
				fmt.Printf("  missing drive times: %v\n", result.MissingDriveTimes)
			}
			if result.Error != "" {
				fmt.Printf("  error: %s\n", result.Error)
			}
			return nil
		}

		c, err := st.ValidateCompleteness(ctx, dataYear)
		if err != nil {
			return err
		}
		fmt.Printf("Completeness for year %d:\n", dataYear)
		fmt.Printf("  locations: %d total, %d processed (%.1f%%)\n", c.TotalLocations, c.ProcessedLocations, c.ProcessingRate)
		fmt.Printf("  polygon data available: %d (%.1f%%)\n", c.LocationsWithEsri, c.EsriAvailabilityRate)
		fmt.Printf("  nearby records: %d (%d unique schools)\n", c.TotalNearbyRecords, c.UniqueNearbySchools)
		return nil
	},
}

func init() {
	nearbyValidateCmd.Flags().Int("data-year", 0, "data year to validate (required)")
	nearbyValidateCmd.Flags().Int64("location-id", 0, "validate a single location")
	_ = nearbyValidateCmd.MarkFlagRequired("data-year")
	nearbyCmd.AddCommand(nearbyValidateCmd)
}
