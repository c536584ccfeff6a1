package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/storage/postgres"
)

var (
	migrateUp   = postgres.Migrate
	migrateDown = postgres.Rollback
)

// newMigrateCmd creates the 'migrate' subcommand applying the embedded schema.
func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back one step of) the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if e.cfg.DB.DSN == "" {
				return errors.New("migrate requires db.dsn")
			}

			if down {
				if err := migrateDown(e.cfg.DB.DSN); err != nil {
					return fmt.Errorf("roll back: %w", err)
				}
				e.logger.Info("rolled back one migration")
				return nil
			}

			version, err := migrateUp(e.cfg.DB.DSN)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			e.logger.Info("schema up to date", zap.Uint("version", version))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}
