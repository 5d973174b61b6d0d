package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored conversation sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Run:   runSessionsList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [session-id]",
		Short: "Delete a session and its turns",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsRm,
	}

	cmd.AddCommand(listCmd, rmCmd)
	RootCmd.AddCommand(cmd)
}

func runSessionsList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	infos, err := s.ListSessions(cmd.Context())
	if err != nil {
		exitErr("list sessions", err)
	}

	if len(infos) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(infos, "", "  ")
	fmt.Println(string(b))
}

func runSessionsRm(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteSession(cmd.Context(), args[0]); err != nil {
		exitErr("rm session", err)
	}
	fmt.Printf(`{"deleted":%q}`+"\n", args[0])
}
