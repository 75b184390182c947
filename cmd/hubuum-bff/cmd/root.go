package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X ...cmd.Version=".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "hubuum-bff",
	Short: "hubuum-bff is the backend-for-frontend of the Hubuum console",
	Long: `A backend-for-frontend that keeps the Hubuum API token server-side,
maps browser cookies to it and proxies the console's API calls.
Configuration is read from an optional YAML file, .env and HUBUUM_* variables.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
}
