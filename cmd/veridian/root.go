// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Veridian CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veridian",
		Short: "Veridian - credential management service",
		Long: `Veridian registers accounts, authenticates identifier+password pairs,
and issues and revokes paired access/refresh tokens.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}
