package cmd

import (
	"github.com/spf13/cobra"

	"audio-isolator/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "audio-isolator",
		Short:        "chunked audio isolation service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(printConfig(config))
	return rootCmd
}
