package main

import (
	"errors"
	"fmt"

	"procurement/db/migrations"
	"procurement/internal/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Long: `Apply all pending goose migrations embedded in the binary.

Examples:
  # Migrate using the environment
  PROCUREMENT_DATABASE_URL=postgres://localhost/procurement?sslmode=disable api-server migrate

  # Migrate using a config file
  api-server migrate --config config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadUnchecked(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	dbConn, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("cannot connect to DB: %w", err)
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}
