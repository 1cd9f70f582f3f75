package cmd

import (
	"MuseFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the MuseFM server",
	Long:  `Start the MuseFM HTTP server: catalog API, streaming gateway and playback session transport.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
