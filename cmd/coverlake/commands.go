package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coverlake/coverlake/internal/config"
	"github.com/coverlake/coverlake/internal/db"
)

var runCmd = &cobra.Command{
	Use:   "run <dataset>",
	Short: "Run the full pipeline for a dataset",
	Long: `Run the full pipeline for a dataset: ingest newly landed files into RAW,
transform new VALID rows into STAGING, then recompute the curated tables.

Examples:
  coverlake run policies
  coverlake run claims`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.close()

		run, runErr := a.orch.Run(ctx, args[0])
		if encErr := printJSON(run); encErr != nil {
			return encErr
		}
		return runErr
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <dataset>",
	Short: "Show watermark position, row counts, and recent runs for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.close()

		status, err := a.orch.Status(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <curated-table>",
	Short: "Rebuild one curated table from current staging content",
	Long: `Rebuild one curated table from current staging content.

Tables: loss_ratio, geo_fraud_flags, solvency_exposure`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.orch.Recompute(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply warehouse schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return db.RunMigrations(cfg.Database, log)
	},
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
