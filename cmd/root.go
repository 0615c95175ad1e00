// Package cmd implements the lodestone command-line interface.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lodestone/internal/config"
	"lodestone/internal/embed"
	"lodestone/internal/index"
	"lodestone/internal/parser"
	"lodestone/internal/parser/languages"
	"lodestone/internal/store"
)

var (
	flagConfig  string
	flagDB      string
	flagProject string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lodestone",
	Short: "Local codebase indexing and hybrid code search",
	Long: `Lodestone indexes source code into structural blocks (functions, classes,
methods) and answers queries by combining keyword matching with embedding
similarity. The index is a local SQLite database; nothing leaves the machine.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default .lodestone.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default .lodestone/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "project identifier (default \"default\")")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the config file and applies flag overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagProject != "" {
		cfg.ProjectID = flagProject
	}
	return cfg, nil
}

// newLogger builds a stderr logger so stdout stays clean for command output
// and the MCP transport.
func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if flagVerbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// openStore creates the database directory if needed and opens the store.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	return store.Open(cfg.DBPath)
}

// openStoreReadOnly opens an existing index, failing with a hint when none
// has been built yet.
func openStoreReadOnly(cfg *config.Config) (*store.SQLiteStore, error) {
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("index not found at %s\nRun 'lodestone index <path>' first to build it", cfg.DBPath)
	}
	return store.Open(cfg.DBPath)
}

// newEmbedder builds the configured embedding backend. The Ollama backend is
// wrapped in a deterministic fallback so a dead daemon degrades rather than
// fails, and both backends share the clearing cache.
func newEmbedder(cfg *config.Config) embed.Embedder {
	var inner embed.Embedder
	switch cfg.Embedder.Backend {
	case "ollama":
		inner = embed.NewFallback(embed.NewOllamaEmbedder(
			cfg.Embedder.OllamaURL, cfg.Embedder.Model, cfg.Embedder.Dimension))
	default:
		inner = embed.NewHashEmbedder(cfg.Embedder.Dimension)
	}
	return embed.NewCached(inner, cfg.Embedder.CacheSize)
}

// newParser builds a parser with every supported language registered.
func newParser() *parser.Parser {
	reg := parser.NewRegistry()
	languages.RegisterAll(reg)
	return parser.New(reg)
}

// newIndexer wires store, parser, and embedder into an indexer.
func newIndexer(cfg *config.Config, st store.Store, logger *zap.Logger) *index.Indexer {
	return index.New(index.Config{
		ProjectID:    cfg.ProjectID,
		Store:        st,
		Parser:       newParser(),
		Embedder:     newEmbedder(cfg),
		Logger:       logger,
		SkipPatterns: skipPatterns(cfg),
	})
}

func skipPatterns(cfg *config.Config) []string {
	if len(cfg.Skip) == 0 {
		return index.DefaultSkipPatterns
	}
	return append(append([]string{}, index.DefaultSkipPatterns...), cfg.Skip...)
}
