package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/booking-availability/internal/auth"
	"github.com/hackgods/booking-availability/internal/config"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for a user, signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		userID := uuid.New()
		if tokenUser != "" {
			if userID, err = uuid.Parse(tokenUser); err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
		}

		token, err := auth.Issue([]byte(cfg.JWTSecret), auth.Claims{UserID: userID.String(), Role: tokenRole}, tokenTTL)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "user %s\n", userID)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User UUID (random when empty)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "client", "Role claim: client or owner")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
