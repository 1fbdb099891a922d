// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kvpg/kvpg/internal/config"
)

// Version is the kvpgserver version.
var Version = "development"

func init() {
	config.BindFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "kvpgserver",
	Short:        "A PostgreSQL wire-protocol frontend over a transactional key-value store",
	SilenceUsage: true,
	Version:      Version,
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	return rootCmd.Execute()
}
