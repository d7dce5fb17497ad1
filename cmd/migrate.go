package cmd

import (
	"fmt"
	"log/slog"

	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(cmd.Context(), cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrate up: ok")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateDown(cmd.Context(), cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrate down: ok")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	list, err := database.MigrateStatus(cmd.Context(), cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, m := range list {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(out, "%05d  %-8s %s\n", m.Version, state, m.Path)
	}
	return nil
}
