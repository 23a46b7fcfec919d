package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const UrlFlagName = "url"

var urlRelayer string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "neutron_message_relayer",
	Short: "Relays cross-chain messages to a destination chain",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
