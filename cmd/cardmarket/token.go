package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/internal/repository"
	"github.com/noah-isme/card-market-api/internal/service"
	"github.com/noah-isme/card-market-api/pkg/config"
	"github.com/noah-isme/card-market-api/pkg/database"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
		roles  []string
		ttl    time.Duration
		noSync bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			if cfg.Env == config.EnvProduction {
				return fmt.Errorf("refusing to mint tokens in production")
			}

			userRoles := make([]models.UserRole, 0, len(roles))
			for _, role := range roles {
				userRoles = append(userRoles, models.UserRole(strings.ToUpper(strings.TrimSpace(role))))
			}

			if !noSync {
				db, err := database.NewPostgres(cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()
				if email == "" {
					email = userID + "@example.test"
				}
				users := repository.NewUserRepository(db)
				if err := users.Upsert(cmd.Context(), &models.User{ID: userID, Email: email, DisplayName: userID}); err != nil {
					logr.Error("failed to mirror user", zap.String("user_id", userID), zap.Error(err))
					return err
				}
			}

			auth := service.NewAuthService(service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.Expiration,
				Issuer:            cfg.JWT.Issuer,
			})
			token, expiresAt, err := auth.IssueToken(userID, userRoles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			logr.Info("token issued", zap.String("user_id", userID), zap.Strings("roles", roles), zap.Time("expires_at", expiresAt))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&email, "email", "", "email stored on the mirrored profile")
	cmd.Flags().StringSliceVar(&roles, "role", []string{string(models.RoleUser)}, "role to grant; repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to JWT_EXPIRATION")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip mirroring the user into the database")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
