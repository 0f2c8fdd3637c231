package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/metrics"
)

var metricsCalculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Compute per-school metrics for a data year",
	Long:  "Joins enrollments with catchment demographics and upserts market-share and trend metrics per drive-time tier.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dataYear, _ := cmd.Flags().GetInt("data-year")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		st := metrics.NewStore(pg.Pool())
		inputs, err := st.FetchInputs(ctx, dataYear)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			fmt.Println("No metric inputs found")
			return nil
		}

		computed := make([]metrics.SchoolMetrics, len(inputs))
		for i, in := range inputs {
			computed[i] = metrics.Compute(in)
		}

		n, err := st.SaveAll(ctx, computed)
		if err != nil {
			return err
		}

		zap.L().Info("metrics calculated",
			zap.Int("data_year", dataYear),
			zap.Int("inputs", len(inputs)),
			zap.Int64("rows", n),
		)
		fmt.Printf("Computed %d metric rows for year %d\n", n, dataYear)
		return nil
	},
}

func init() {
	metricsCalculateCmd.Flags().Int("data-year", 0, "data year to compute (required)")
	_ = metricsCalculateCmd.MarkFlagRequired("data-year")
	metricsCmd.AddCommand(metricsCalculateCmd)
}
