package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castmark/persona-engine/internal/embedding"
	"github.com/castmark/persona-engine/internal/index"
	"github.com/castmark/persona-engine/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the knowledge index for a character",
		Long:  "Embed stored chunks and build the retrieval index. Chunks whose embedding fails are skipped and reported.",
		Run:   runIndex,
	}

	cmd.Flags().StringP("character", "c", "", "Character ID (required)")
	cmd.Flags().Bool("rebuild", false, "Re-embed every chunk from scratch")
	cmd.MarkFlagRequired("character")

	RootCmd.AddCommand(cmd)
}

func runIndex(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	rebuild, _ := cmd.Flags().GetBool("rebuild")

	logger := newLogger()
	defer logger.Sync()

	embedder := embedding.NewFromEnv()
	if embedder == nil {
		exitErr("index", fmt.Errorf("no embedding provider configured (set PERSONA_ENGINE_EMBED_PROVIDER)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	idx := index.New(s, embedder, logger)

	var indexed int
	if rebuild {
		indexed, err = idx.Rebuild(cmd.Context(), characterID)
	} else {
		indexed, err = idx.Build(cmd.Context(), characterID)
	}

	skipped := 0
	var idxErr *model.IndexingError
	if errors.As(err, &idxErr) {
		skipped = idxErr.Skipped
	} else if err != nil {
		exitErr("index", err)
	}

	fmt.Printf(`{"character_id":%q,"indexed":%d,"skipped":%d}`+"\n", characterID, indexed, skipped)
}
