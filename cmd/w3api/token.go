package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tinytb/web3.storage/adapters/auth"
	"github.com/tinytb/web3.storage/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user",
	Long: `Issue a bearer token signed with auth.jwt_secret.

Intended for local testing against a running server:

  curl -H "Authorization: Bearer $(w3api token did:key:alice)" \
    http://localhost:8080/user/payment`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: auth.token_ttl)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ttl := cfg.Auth.TokenTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
	token, expires, err := tokens.GenerateToken(args[0])
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
