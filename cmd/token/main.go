package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GTDGit/gtd_wechat/internal/config"
	"github.com/GTDGit/gtd_wechat/internal/utils"
)

// main issues bearer tokens for the /v1 API using the server's JWT_SECRET.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var userID, email string

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Issue an API token signed with JWT_SECRET",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			utils.SetJWTSecret(cfg.JWTSecret)

			token, err := utils.GenerateJWT(userID, email)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID placed in the token")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Optional email claim")

	return cmd
}
