package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current token on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := resolveToken(cmd, opts)
			if err != nil {
				return err
			}

			endpoint := strings.TrimRight(opts.server, "/") + "/api/auth/logout"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
			if err != nil {
				return fmt.Errorf("logout request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
				var body struct {
					Error string `json:"error"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				if body.Error == "" {
					body.Error = resp.Status
				}
				return fmt.Errorf("logout failed (%d): %s", resp.StatusCode, body.Error)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Token revoked.")
			return nil
		},
	}
}
