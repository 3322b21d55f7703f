package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair drift between the operational and analytical chunk stores",
	Long: `Compares per-source chunk counts between the catalog and the vector
store, replays missing rows from the catalog's stored embeddings, and
removes analytical rows whose source no longer exists.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Reconciler.Reconcile(cmd.Context(), tenantFlag)
		if err != nil {
			return err
		}
		fmt.Printf("checked %d sources: repaired %d, replayed %d rows, deleted %d orphans\n",
			report.SourcesChecked, report.SourcesRepaired, report.RowsReplayed, report.OrphansDeleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
