package main

import "github.com/spf13/cobra"

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Nearby-schools catchment processing",
	Long:  "Computes which schools fall inside each location's drive-time polygons and manages the resulting relationships.",
}

func init() { rootCmd.AddCommand(nearbyCmd) }
