// Package cli implements the persona-engine CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/castmark/persona-engine/internal/embedding"
	"github.com/castmark/persona-engine/internal/engine"
	"github.com/castmark/persona-engine/internal/generation"
	"github.com/castmark/persona-engine/internal/index"
	"github.com/castmark/persona-engine/internal/retrieve"
	"github.com/castmark/persona-engine/internal/session"
	"github.com/castmark/persona-engine/internal/store"
)

var (
	dbPath  string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "persona-engine",
	Short: "Character-persona conversational agent",
	Long:  "Build a persona chatbot from raw character source text: ingest, index, chat. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $PERSONA_ENGINE_DB or ~/.persona-engine/engine.db)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("PERSONA_ENGINE_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".persona-engine", "engine.db")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// buildController wires the full turn pipeline for chat/ask: store,
// index snapshot, retriever, generator, session manager, controller.
func buildController(ctx context.Context, s *store.SQLiteStore, characterID string, logger *zap.Logger) (*engine.Controller, error) {
	embedder := embedding.NewFromEnv()

	idx := index.New(s, embedder, logger)
	if _, err := idx.Build(ctx, characterID); err != nil {
		// Partial builds still serve what succeeded.
		logger.Warn("index build incomplete", zap.Error(err))
	}

	retriever := retrieve.New(idx, embedder, retrieve.DefaultWeights(), logger)

	gen, err := generation.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(s, session.DefaultIdleTimeout, logger)
	return engine.New(sessions, retriever, gen, s, engine.DefaultConfig(), logger), nil
}
