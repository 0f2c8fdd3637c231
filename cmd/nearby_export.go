package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

var nearbyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export relationships for a data year as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dataYear, _ := cmd.Flags().GetInt("data-year")
		outPath, _ := cmd.Flags().GetString("out")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		f, err := os.Create(outPath)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", outPath)
		}
		defer f.Close() //nolint:errcheck

		n, err := nearby.ExportCSV(ctx, nearby.NewPostgresStore(pg.Pool()), dataYear, f)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d rows to %s\n", n, outPath)
		return nil
	},
}

func init() {
	nearbyExportCmd.Flags().Int("data-year", 0, "data year to export (required)")
	nearbyExportCmd.Flags().String("out", "nearby_schools.csv", "output CSV path")
	_ = nearbyExportCmd.MarkFlagRequired("data-year")
	nearbyCmd.AddCommand(nearbyExportCmd)
}
