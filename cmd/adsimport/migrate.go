package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"adsinsight/internal/config"
	"adsinsight/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			dsn := strings.TrimSpace(cfg.DatabaseURL)
			if dsn == "" {
				return errors.New("APP_DATABASE_URL is required")
			}
			if err := db.RunMigrations(dsn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
