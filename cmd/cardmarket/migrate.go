package main

import (
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/migrations"
	"github.com/noah-isme/card-market-api/pkg/database"
)

func newMigrateCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			if dir == "" {
				dir = cfg.Database.MigrationsDir
			}
			var files fs.FS = migrations.Files
			if dir != "" {
				files = os.DirFS(dir)
			}

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				logr.Error("failed to connect to database", zap.Error(err))
				return err
			}
			defer db.Close()

			applied, err := database.Migrate(cmd.Context(), db, files, logr)
			if err != nil {
				logr.Error("migration failed", zap.Error(err))
				return err
			}
			logr.Info("migrations complete", zap.Int("applied", applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")
	return cmd
}
