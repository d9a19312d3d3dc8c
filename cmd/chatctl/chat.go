package main

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/serene/backend/internal/client"
)

func newChatCmd(opts *globalOptions) *cobra.Command {
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "chat <peer-id>",
		Short: "Chat with a peer interactively",
		Long:  "Opens a live session with the peer. Type a line to send it, /older to load earlier messages, /quit to leave.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := resolveToken(cmd, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var (
				mu        sync.Mutex
				printed   = make(map[string]struct{})
				wasTyping bool
				wasOnline bool
				lastError string
			)
			render := func(st client.State) {
				mu.Lock()
				defer mu.Unlock()

				for _, msg := range st.Messages {
					if _, ok := printed[msg.ID]; ok {
						continue
					}
					printed[msg.ID] = struct{}{}
					printMessage(out, msg)
				}
				if st.Connected != wasOnline {
					wasOnline = st.Connected
					if st.Connected {
						fmt.Fprintln(out, "-- connected")
					} else {
						fmt.Fprintln(out, "-- disconnected")
					}
				}
				if st.PeerTyping && !wasTyping {
					fmt.Fprintf(out, "-- %s is typing...\n", args[0])
				}
				wasTyping = st.PeerTyping
				if st.Error != "" && st.Error != lastError {
					fmt.Fprintf(out, "!! %s\n", st.Error)
				}
				lastError = st.Error
			}

			session, err := client.OpenSession(cmd.Context(), client.SessionConfig{
				ServerURL:    opts.server,
				Token:        token,
				PeerID:       args[0],
				HistoryLimit: historyLimit,
				OnChange:     render,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/quit":
					return nil
				case "/older":
					if _, err := session.LoadOlder(cmd.Context()); err != nil {
						fmt.Fprintf(out, "!! %v\n", err)
					}
					continue
				}

				session.UpdateTypingStatus(true)
				if err := session.SendMessage(line); err != nil {
					fmt.Fprintf(out, "!! %v\n", err)
				}
				session.UpdateTypingStatus(false)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().IntVar(&historyLimit, "history", 50, "number of messages to load when the session opens")
	return cmd
}
