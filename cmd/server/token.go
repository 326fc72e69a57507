package main

import (
	"fmt"
	"time"

	"guardshift/internal/config"
	"guardshift/internal/utils"

	"github.com/spf13/cobra"
)

// tokenCmd mints an access token signed with the configured secret, for
// operators and local device simulators.
func tokenCmd() *cobra.Command {
	var (
		userType string
		phone    string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token for a candidate or admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if userType != utils.UserTypePersonnel && userType != utils.UserTypeAdmin {
				return fmt.Errorf("unknown user type %q", userType)
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWTAccessTokenTTL
			}

			token, err := utils.GenerateAccessToken(args[0], userType, utils.NormalizePhone(phone), cfg.Security.JWTSecret, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userType, "type", "t", utils.UserTypePersonnel, "User type (personnel, admin)")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_ACCESS_TOKEN_TTL)")
	return cmd
}
