package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"audio-isolator/config"
)

func printConfig(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg.Redacted())
		},
	}
}
