package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, one full scrape and import.
func newRunCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape every enabled source once and import the results",
		Long: `Runs all enabled sources, deduplicates and geocodes the drafts, and
reconciles them against the event store. The run summary is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = e.cfg.Pipeline.HorizonDays
			}

			a, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer a.Close()

			summary, runErr := a.Runner.Run(cmd.Context(), days)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				e.logger.Warn("write summary", zap.Error(err))
			}
			if runErr != nil {
				return fmt.Errorf("run: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "horizon in days (default pipeline.horizon_days; 0 disables the bound)")
	return cmd
}
