package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castmark/persona-engine/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a character's corpus by keyword",
		Long:  "Full-text search over stored chunks. Useful for checking what the index knows before chatting.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("character", "c", "", "Character ID (required)")
	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.MarkFlagRequired("character")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	chunks, err := s.SearchLexical(cmd.Context(), store.SearchParams{
		CharacterID: characterID,
		Query:       query,
		Limit:       limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if len(chunks) == 0 {
		fmt.Println("[]")
		return
	}
	// Embeddings are noise in search output.
	for i := range chunks {
		chunks[i].Embedding = nil
	}
	b, _ := json.MarshalIndent(chunks, "", "  ")
	fmt.Println(string(b))
}
