package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation with a character",
		Long:  "REPL chat. Type a message, get an in-character reply. Ctrl-D or /quit to leave.",
		Run:   runChat,
	}

	cmd.Flags().StringP("character", "c", "", "Character ID (required for a new session)")
	cmd.Flags().StringP("session", "s", "", "Resume an existing session")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	characterID, _ := cmd.Flags().GetString("character")
	sessionID, _ := cmd.Flags().GetString("session")

	if sessionID == "" && characterID == "" {
		exitErr("chat", fmt.Errorf("--character is required for a new session"))
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

	p, err := s.GetPersona(ctx, characterID)
	if err != nil {
		exitErr("chat", err)
	}

	ctrl, err := buildController(ctx, s, characterID, logger)
	if err != nil {
		exitErr("chat", err)
	}

	if sessionID == "" && p.Greeting != "" {
		fmt.Printf("%s: %s\n", p.Name, p.Greeting)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		result, err := ctrl.HandleMessage(ctx, sessionID, characterID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		sessionID = result.SessionID
		fmt.Printf("%s: %s\n", p.Name, result.Response)
	}

	if sessionID != "" {
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}
}
