package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cairn-ai/cairn/internal/rag"
)

var (
	searchTopK      int
	searchThreshold float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the tenant's indexed chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		// CLI searches span every source the tenant owns.
		sources, err := a.Catalog.ListSources(cmd.Context(), tenantFlag, 1000, 0)
		if err != nil {
			return err
		}
		allowed := make([]uuid.UUID, 0, len(sources))
		for _, s := range sources {
			allowed = append(allowed, s.ID)
		}

		topK := searchTopK
		if topK <= 0 {
			topK = a.Config.TopK
		}
		threshold := searchThreshold
		if threshold < 0 {
			threshold = a.Config.MinSimilarity
		}

		chunks, err := a.Searcher.Search(cmd.Context(), rag.SearchRequest{
			TenantID:         tenantFlag,
			Query:            query,
			AllowedSourceIDs: allowed,
			TopK:             topK,
			MinSimilarity:    threshold,
		})
		if err != nil {
			return err
		}

		refs, err := a.Assembler.Assemble(cmd.Context(), tenantFlag, chunks)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for i, ref := range refs {
			fmt.Printf("%d. [%.3f] %s\n   %s\n", i+1, ref.Similarity, ref.SourceName, ref.Preview)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of results (defaults to configured top_k)")
	searchCmd.Flags().Float64Var(&searchThreshold, "min-similarity", -1, "similarity threshold (defaults to configured min_similarity)")
	rootCmd.AddCommand(searchCmd)
}
