package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token",
		Long:  "Signs a token for --user with the server's JWT_SECRET, JWT_ISS and JWT_AUD settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			verifier := auth.NewJWTVerifier(cfg.Auth.Secret,
				auth.WithIssuer(cfg.Auth.Issuer),
				auth.WithAudience(cfg.Auth.Audience),
			)
			token, err := verifier.Issue(userID, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
