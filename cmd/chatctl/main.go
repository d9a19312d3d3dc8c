package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultServerURL = "http://localhost:8080"

type globalOptions struct {
	server string
	token  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "Terminal client for the Serene chat backend",
		Long:          "chatctl mints development tokens, reads conversation history and chats over the live channel.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("CHAT_SERVER_URL", defaultServerURL), "chat server base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CHAT_TOKEN"), "bearer token (prompted when empty)")

	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	return cmd
}

// resolveToken returns the flag value or prompts for it without echo on a terminal.
func resolveToken(cmd *cobra.Command, opts *globalOptions) (string, error) {
	if token := strings.TrimSpace(opts.token); token != "" {
		return token, nil
	}

	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return "", errors.New("token is required: pass --token or set CHAT_TOKEN")
	}
	fd := int(in.Fd())

	fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("token is required")
	}
	return token, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	// .env 可选
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
