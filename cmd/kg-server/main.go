package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/config"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/ctxlog"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/service"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/store"
)

var (
	configPath string
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:   "kg-server",
		Short: "A per-learner knowledge graph with spaced-repetition scheduling",
		Long: `kg-server stores concepts, their relationships and a learner's mastery,
and answers study questions over them: what is ready to learn, what is
due for review, and in which order to learn a concept's prerequisites.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			return err
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("KG_CONFIG", "kg-server.yaml"), "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, statsCmd)
	serveCmd.AddCommand(serveHTTPCmd, serveMCPCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger writing to w.
func newLogger(w io.Writer) *slog.Logger {
	logger := ctxlog.New(w, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)
	return logger
}

// openService opens the configured store and wraps it in a Service. The
// returned close func releases the store.
func openService(ctx context.Context, logger *slog.Logger) (*service.Service, func(), error) {
	st, err := openStore(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := st.Close(context.Background()); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}
	return service.New(st, cfg.Thresholds), closeFn, nil
}

func openStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		st, err := store.NewSQLite(ctx, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("Opened SQLite store", "path", cfg.Store.Path)
		return st, nil
	case config.BackendBadger:
		st, err := store.NewBadger(store.BadgerConfig{
			Path:   cfg.Store.Path,
			Logger: logger.With("component", "badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		logger.Info("Opened Badger store", "path", cfg.Store.Path)
		return st, nil
	case config.BackendNeo4j:
		st, err := store.NewNeo4j(ctx, store.Neo4jConfig(cfg.Store.Neo4j))
		if err != nil {
			return nil, fmt.Errorf("connect to neo4j: %w", err)
		}
		logger.Info("Connected to Neo4j successfully", "uri", cfg.Store.Neo4j.URI)
		return st, nil
	case config.BackendMemory:
		logger.Warn("Using in-memory store; data is lost on exit")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
