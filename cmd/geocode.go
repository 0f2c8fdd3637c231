package main

import "github.com/spf13/cobra"

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode school addresses",
	Long:  "Resolves coordinates for location rows via the Census geocoder with Google fallback.",
}

func init() { rootCmd.AddCommand(geocodeCmd) }
