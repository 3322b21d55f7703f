package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cairn-ai/cairn/internal/rag"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage tenant sources",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name> <file>",
	Short: "Create a source from a text file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}

		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := a.Catalog.CreateSource(cmd.Context(), tenantFlag, args[0], string(text))
		if err != nil {
			return err
		}
		fmt.Printf("created source %s (%s, %d bytes)\n", src.ID, src.Name, len(text))
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sources, err := a.Catalog.ListSources(cmd.Context(), tenantFlag, 100, 0)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("no sources")
			return nil
		}
		for _, s := range sources {
			fmt.Printf("%s  %-10s  %4d chunks  %s\n", s.ID, s.Status, s.ChunkCount, s.Name)
		}
		return nil
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source from both stores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid source id %q", args[0])
		}

		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Catalog.DeleteSource(cmd.Context(), tenantFlag, id); err != nil {
			return err
		}
		if _, err := a.Vectors.DeleteBySource(cmd.Context(), id); err != nil {
			a.Logger.Warn("failed to delete analytical rows, reconciler will clean up",
				"source_id", id, "error", err)
		}
		fmt.Printf("deleted source %s\n", id)
		return nil
	},
}

var sourcesIndexCmd = &cobra.Command{
	Use:   "index <id>",
	Short: "Chunk, embed and index a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid source id %q", args[0])
		}

		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := a.Catalog.GetSource(cmd.Context(), tenantFlag, id)
		if err != nil {
			return err
		}

		result, err := a.Indexer.IndexDocument(cmd.Context(), rag.IndexRequest{
			SourceID:   src.ID,
			TenantID:   tenantFlag,
			SourceName: src.Name,
			Text:       src.ExtractedText,
			ChunkSize:  a.Config.ChunkSize,
			Overlap:    a.Config.ChunkOverlap,
		})
		if err != nil {
			return err
		}
		fmt.Printf("indexed %s: %d chunks, %d tokens in %s\n",
			src.Name, result.ChunksCreated, result.TotalTokens, result.IndexingTime)
		return nil
	},
}

// indexCmd is a top-level shorthand for "sources index".
var indexCmd = &cobra.Command{
	Use:   "index <id>",
	Short: "Chunk, embed and index a source",
	Args:  cobra.ExactArgs(1),
	RunE:  sourcesIndexCmd.RunE,
}

func init() {
	sourcesCmd.AddCommand(sourcesAddCmd, sourcesListCmd, sourcesDeleteCmd, sourcesIndexCmd)
	rootCmd.AddCommand(sourcesCmd, indexCmd)
}
