package main

import "github.com/spf13/cobra"

var esriCmd = &cobra.Command{
	Use:   "esri",
	Short: "Drive-time polygon and demographics fetch",
	Long:  "Fetches drive-time service areas and demographic attributes from the ArcGIS GeoEnrichment service.",
}

func init() { rootCmd.AddCommand(esriCmd) }
