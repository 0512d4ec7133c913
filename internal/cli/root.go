// Package cli implements the peacesecurity command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/project_configuration.yaml"

var (
	version    = "dev"
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "peacesecurity",
	Short: "Publish peace and security datasets to HDX",
	Long: `Fetches peace and security datasets from the source API, reshapes them
into catalog datasets and publishes the ones that changed since the last run.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the project configuration")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
