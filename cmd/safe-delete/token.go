package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"safe-delete/internal/auth"
	"safe-delete/internal/exitcodes"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for API clients",
		Long: `Signs a token with the configured api.jwt_secret (or the
SAFE_DELETE_JWT_SECRET / SAFE_DELETE_JWT_SECRET_FILE environment variables).
Roles: admin and operator may delete and read logs, viewer may only read logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.API.JWTSecret == "" {
				return exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("no jwt secret configured"))
			}

			user, _ := cmd.Flags().GetString("user")
			roles, _ := cmd.Flags().GetStringSlice("role")
			expiry, _ := cmd.Flags().GetDuration("expiry")
			if expiry <= 0 {
				expiry = cfg.API.JWTExpiry
			}

			m, err := auth.NewJWTManager(cfg.API.JWTSecret, expiry)
			if err != nil {
				return exitcodes.Wrap(exitcodes.InvalidConfig, err)
			}
			token, expires, err := m.GenerateToken(uuid.NewString(), user, roles)
			if err != nil {
				return exitcodes.Wrap(exitcodes.InvalidConfig, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("user", "", "User name recorded in the token")
	cmd.Flags().StringSlice("role", []string{auth.RoleOperator}, "Role(s) granted by the token")
	cmd.Flags().Duration("expiry", 0, "Token lifetime (default api.jwt_expiry)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
