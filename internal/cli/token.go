package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd issues a host token for local development.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a host token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret not configured")
			}
			verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			token, err := verifier.Issue(userID, config.Duration(cfg.Auth.TokenTTL, 24*time.Hour))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id carried by the token")
	return cmd
}
