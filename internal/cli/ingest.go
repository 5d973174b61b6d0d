package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castmark/persona-engine/internal/chunker"
	"github.com/castmark/persona-engine/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Chunk and store character source text",
		Long:  "Split source text into chunks and store them for a character. Text can be a file argument or piped via stdin.",
		Run:   runIngest,
	}

	cmd.Flags().StringP("character", "c", "", "Character ID (required)")
	cmd.Flags().String("source-ref", "", "Provenance label, e.g. book title (required)")
	cmd.Flags().String("kind", "novel", "Source kind: novel, dialogue, profile, wiki")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().Int("max-chunk", chunker.DefaultMaxSize, "Hard cap on chunk size in characters")

	cmd.MarkFlagRequired("character")
	cmd.MarkFlagRequired("source-ref")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	sourceRef, _ := cmd.Flags().GetString("source-ref")
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")
	maxChunk, _ := cmd.Flags().GetInt("max-chunk")

	var text string
	if len(args) > 0 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			exitErr("read source", err)
		}
		text = string(b)
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	if strings.TrimSpace(text) == "" {
		exitErr("ingest", fmt.Errorf("source text is required (file arg or stdin)"))
	}

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
	}

	opts := chunker.DefaultOptions()
	if maxChunk > 0 {
		opts.MaxSize = maxChunk
		if opts.TargetSize > maxChunk {
			opts.TargetSize = maxChunk * 2 / 3
		}
	}

	chunks := chunker.Chunk(text, opts)
	if len(chunks) == 0 {
		exitErr("ingest", fmt.Errorf("no chunks produced from input"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stored := 0
	for _, c := range chunks {
		_, err := s.PutChunk(cmd.Context(), store.PutChunkParams{
			CharacterID: characterID,
			Text:        c,
			SourceRef:   sourceRef,
			SourceKind:  kind,
			Tags:        tags,
		})
		if err != nil {
			exitErr("store chunk", err)
		}
		stored++
	}

	fmt.Printf(`{"character_id":%q,"source_ref":%q,"chunks":%d}`+"\n", characterID, sourceRef, stored)
}
