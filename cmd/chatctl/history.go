package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/serene/backend/internal/client"
	chatHandler "github.com/zhouzirui/serene/backend/internal/handler/chat"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		before string
	)

	cmd := &cobra.Command{
		Use:   "history <peer-id>",
		Short: "Print the conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := resolveToken(cmd, opts)
			if err != nil {
				return err
			}

			query := client.HistoryQuery{Limit: limit}
			if before != "" {
				t, err := chatHandler.ParseBefore(before)
				if err != nil {
					return fmt.Errorf("invalid --before %q: %w", before, err)
				}
				query.Before = &t
			}

			endpoint := strings.TrimRight(opts.server, "/") + "/api/chat/history"
			messages, err := client.NewHistoryClient(endpoint, token, nil).LoadHistory(cmd.Context(), args[0], query)
			if err != nil {
				return err
			}

			if len(messages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages.")
				return nil
			}
			for _, msg := range messages {
				printMessage(cmd.OutOrStdout(), msg)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages (server default when 0)")
	cmd.Flags().StringVar(&before, "before", "", "only messages before this RFC 3339 time or unix milliseconds")
	return cmd
}

func printMessage(w io.Writer, msg chat.Message) {
	sender := msg.SenderID
	if msg.SenderType != "" && msg.SenderType != chat.SenderUser {
		sender = fmt.Sprintf("%s (%s)", msg.SenderID, strings.ToLower(string(msg.SenderType)))
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", msg.Timestamp.Local().Format(time.DateTime), sender, msg.Content)
}
