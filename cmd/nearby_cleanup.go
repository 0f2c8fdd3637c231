package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

var nearbyCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete orphaned nearby-school entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		result, err := nearby.NewPostgresStore(pg.Pool()).CleanupOrphans(ctx)
		if err != nil {
			return err
		}
		if result.OrphanCount == 0 {
			fmt.Println("No orphaned records found")
			return nil
		}
		fmt.Printf("Deleted %d of %d orphaned records\n", result.DeletedCount, result.OrphanCount)
		return nil
	},
}

func init() { nearbyCmd.AddCommand(nearbyCleanupCmd) }
