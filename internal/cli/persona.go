package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castmark/persona-engine/internal/persona"
)

func init() {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage character personas",
	}

	putCmd := &cobra.Command{
		Use:   "put [profile.yaml]",
		Short: "Load a persona profile from YAML",
		Args:  cobra.ExactArgs(1),
		Run:   runPersonaPut,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored personas",
		Run:   runPersonaList,
	}

	cmd.AddCommand(putCmd, listCmd)
	RootCmd.AddCommand(cmd)
}

func runPersonaPut(cmd *cobra.Command, args []string) {
	p, err := persona.Load(args[0])
	if err != nil {
		exitErr("load persona", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.SavePersona(cmd.Context(), *p); err != nil {
		exitErr("save persona", err)
	}

	b, _ := json.Marshal(p)
	fmt.Println(string(b))
}

func runPersonaList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	personas, err := s.ListPersonas(cmd.Context())
	if err != nil {
		exitErr("list personas", err)
	}

	if len(personas) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(personas, "", "  ")
	fmt.Println(string(b))
}
