package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/castmark/persona-engine/internal/model"
)

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export corpus chunks as JSON",
		Long:  "Dump chunks (embeddings included) to stdout for backup or transfer.",
		Run:   runExport,
	}
	exportCmd.Flags().StringP("character", "c", "", "Limit to one character")

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import corpus chunks from a JSON export",
		Run:   runImport,
	}

	RootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	chunks, err := s.ExportChunks(cmd.Context(), characterID)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(chunks, "", "  ")
	fmt.Println(string(b))
}

func runImport(cmd *cobra.Command, args []string) {
	var data []byte
	var err error
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read import", err)
	}

	var chunks []model.KnowledgeChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		exitErr("parse import", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.ImportChunks(cmd.Context(), chunks)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf(`{"imported":%d}`+"\n", n)
}
