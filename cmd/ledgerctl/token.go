package main

import (
	"errors"
	"time"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Long:  `Signs an HS256 token with JWT_SECRET_KEY. Intended for operators and local testing.`,
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User id placed in the user_id claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "Role claim, e.g. "+models.RoleAdmin)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenUser == "" {
		return errors.New("--user is required")
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.JWT.SecretKey == "" {
		return errors.New("JWT_SECRET_KEY is not set")
	}

	token, err := middleware.IssueToken(cfg.JWT.SecretKey, models.Principal{UserID: tokenUser, Role: tokenRole}, tokenTTL)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
