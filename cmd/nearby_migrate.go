package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

var nearbyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := nearby.Migrate(ctx, pg.Pool()); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

func init() { nearbyCmd.AddCommand(nearbyMigrateCmd) }
