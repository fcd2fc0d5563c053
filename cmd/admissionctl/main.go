/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command admissionctl runs per-client admission controllers and inspects their configuration.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admissionctl",
		Short: "Per-client API request admission controller",
		Long: `admissionctl queues API requests of every configured client, admits them up to the quota
of the client's license tier and drops requests that wait longer than the expiry timeout.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file (YAML or JSON)")
	rootCmd.AddCommand(
		newRunCommand(),
		newTiersCommand(),
		newVersionCommand(),
	)
	return rootCmd
}
