// Package cmd defines the strive command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "strive",
	Short: "Strive - conversational OKR assistant",
	Long: `Strive is the conversation core of the OKR management platform.
It analyzes user intents, executes multi-step plans against the OKR
domain functions, and tracks document-driven OKR creation workflows.

Run "strive serve" to start the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
