// Package cmd implements the cairn CLI: an HTTP server plus operational
// commands for managing sources, running searches and reconciling the two
// chunk stores.
package cmd

import (
	"github.com/spf13/cobra"
)

// tenantFlag scopes CLI operations to one tenant.
var tenantFlag string

var rootCmd = &cobra.Command{
	Use:   "cairn",
	Short: "Cairn - multi-tenant RAG backend",
	Long: `Cairn indexes tenant documents into a dual chunk store and answers
agent questions grounded in the retrieved context.

Run "cairn serve" to start the HTTP API, or use the source, search and
reconcile subcommands for operational work against the same database.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "default", "tenant to operate as")
}
