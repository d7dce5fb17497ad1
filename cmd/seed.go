package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create default admin, mechanic and guide accounts (idempotent)",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := database.MigrateUp(ctx, cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	n, err := database.Seed(ctx, db, database.DefaultAccounts(os.Getenv("ADMIN_PASSWORD")))
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	slog.Info("seed: done", "created", n)
	return nil
}
