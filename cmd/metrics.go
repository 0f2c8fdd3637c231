package main

import "github.com/spf13/cobra"

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Enrollment and market-share metrics",
}

func init() { rootCmd.AddCommand(metricsCmd) }
