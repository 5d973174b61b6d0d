package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message to a character",
		Long:  "One-shot turn: starts a session (or resumes one) and prints the session id and response as JSON.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}

	cmd.Flags().StringP("character", "c", "", "Character ID (required for a new session)")
	cmd.Flags().StringP("session", "s", "", "Resume an existing session")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	sessionID, _ := cmd.Flags().GetString("session")
	message := strings.Join(args, " ")

	if sessionID == "" && characterID == "" {
		exitErr("ask", fmt.Errorf("--character is required for a new session"))
	}

	logger := newLogger()
	defer logger.Sync()

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	if sessionID != "" && characterID == "" {
		st, err := s.LoadSession(ctx, sessionID)
		if err != nil {
			exitErr("load session", err)
		}
		characterID = st.Persona.CharacterID
	}

	ctrl, err := buildController(ctx, s, characterID, logger)
	if err != nil {
		exitErr("ask", err)
	}

	result, err := ctrl.HandleMessage(ctx, sessionID, characterID, message)
	if err != nil {
		exitErr("ask", err)
	}

	b, _ := json.Marshal(result)
	fmt.Println(string(b))
}
