package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/app"
	"github.com/artem-schander/protest-scraper-sub000/internal/config"
	"github.com/artem-schander/protest-scraper-sub000/internal/logging"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what PersistentPreRunE hands to the subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory. Tests replace it to inject fakes.
var newApp = app.New

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "protestscraper",
		Short: "Collects protest listings from public sources into one event store.",
		Long: `protestscraper fetches demonstration listings from police and activist
sites in Germany and Austria, normalizes and geocodes them, and reconciles
them against the event store without overwriting manual edits.`,
		SilenceUsage: true,

		// Config and logger are built before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); PROTEST_* env vars override it")

	cmd.AddCommand(newRunCmd(), newServeCmd(), newMigrateCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}
