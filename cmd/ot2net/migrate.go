package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ness-ot/ot2net/internal/platform/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			if err := database.RunMigrations(cfg.Database.URL); err != nil {
				return err
			}
			slog.Info("migrations complete")
			return nil
		},
	}
}
