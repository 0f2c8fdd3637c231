package main

import "github.com/spf13/cobra"

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk data loads",
}

func init() { rootCmd.AddCommand(importCmd) }
