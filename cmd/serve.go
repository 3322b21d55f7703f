package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cairn-ai/cairn/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		chatSvc, err := a.chatService(ctx)
		if err != nil {
			return fmt.Errorf("wiring chat service: %w", err)
		}

		cfg := a.Config
		srv := api.NewServer(api.Deps{
			Pool: a.Pool,
			Sources: api.NewSourcesHandler(a.Catalog, a.Indexer, a.Vectors,
				cfg.ChunkSize, cfg.ChunkOverlap, a.Logger),
			Agents: api.NewAgentsHandler(a.Catalog, a.Logger),
			Search: api.NewSearchHandler(a.Searcher, a.Assembler, a.Catalog, a.Logger),
			Chat:   api.NewChatHandler(chatSvc, cfg.TopK, cfg.MinSimilarity, a.Logger),
			Logger: a.Logger,
		})

		addr := serveAddr
		if addr == "" {
			addr = cfg.ServerAddr
		}
		return srv.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to configured server_addr)")
	rootCmd.AddCommand(serveCmd)
}
