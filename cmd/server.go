package cmd

import (
	"github.com/spf13/cobra"

	"audio-isolator/config"
	server2 "audio-isolator/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunHttp(config)
		},
	}
}
