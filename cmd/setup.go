package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/cairn-ai/cairn/db"
	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/chat"
	"github.com/cairn-ai/cairn/internal/config"
	"github.com/cairn-ai/cairn/internal/database"
	"github.com/cairn-ai/cairn/internal/embedder"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/rag"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// app bundles the wired components every command builds on.
type app struct {
	Config     *config.Config
	Pool       *pgxpool.Pool
	Catalog    *catalog.Store
	Vectors    *vectorstore.Store
	Embedder   *embedder.Gemini
	Indexer    *rag.Indexer
	Searcher   *rag.Searcher
	Assembler  *rag.Assembler
	Reconciler *rag.Reconciler
	Logger     log.Logger
}

// Close releases the database pool.
func (a *app) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}

// setup loads configuration, migrates and connects the database, and wires
// the embedding and RAG components. Callers own the returned app and must
// Close it.
func setup(ctx context.Context) (*app, error) {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	catalogStore := catalog.NewStore(pool, logger)
	vectors := vectorstore.NewStore(pool,
		time.Duration(cfg.SearchTimeoutSecs)*time.Second, logger)
	emb := embedder.NewGemini(client, cfg.EmbedderModel, cfg.EmbedRatePerSec, logger)

	return &app{
		Config:     cfg,
		Pool:       pool,
		Catalog:    catalogStore,
		Vectors:    vectors,
		Embedder:   emb,
		Indexer:    rag.NewIndexer(catalogStore, vectors, emb, logger),
		Searcher:   rag.NewSearcher(emb, vectors, logger),
		Assembler:  rag.NewAssembler(catalogStore, logger),
		Reconciler: rag.NewReconciler(catalogStore, vectors, logger),
		Logger:     logger,
	}, nil
}

// chatService wires the Genkit generator on top of an already-built app.
// Split out because only serve needs generation.
func (a *app) chatService(ctx context.Context) (*chat.Service, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}

	gen := chat.NewGenkitGenerator(g, a.Config.ModelName, a.Config.Temperature, a.Config.MaxTokens)
	timeout := time.Duration(a.Config.ChatTimeoutSecs) * time.Second

	return chat.NewService(a.Catalog, a.Searcher, a.Assembler, gen, timeout, a.Logger), nil
}
