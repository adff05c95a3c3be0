package cmd

import (
	"errors"
	"fmt"

	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database/mysql"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/syncer"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending attendance rows to the campus database",
	Long: `Run one reconciliation pass against the campus attendance database.
Pending rows are pushed and marked sukses; rows another kiosk already
synced are merged locally. Rows that fail stay pending for the next run.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("class", "", "Sync a single class (default: all classes)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Remote.DatabaseURL == "" {
		return errors.New("REMOTE_DATABASE_URL environment variable is required for sync")
	}

	ledger, err := sqlite.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("opening attendance ledger: %w", err)
	}
	defer ledger.Close()

	// Fail fast on a dead remote, a manual sync wants the answer now.
	pool, err := mysql.NewPool(cfg.Remote.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to remote attendance database: %w", err)
	}
	defer pool.Close()

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	reconciler := syncer.New(ledger, pool, syncer.Config{
		Interval:    cfg.Sync.Interval,
		Timeout:     cfg.Sync.Timeout,
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   cfg.Sync.BaseDelay,
	}, logger)

	var report syncer.Report
	if classCode := mustGetString(cmd, "class"); classCode != "" {
		report, err = reconciler.ReconcileClass(cmd.Context(), classCode)
	} else {
		report, err = reconciler.Reconcile(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("sync pass failed: %w", err)
	}

	if report.Total() == 0 {
		fmt.Println("Nothing to sync")
		return nil
	}

	fmt.Printf("Synced:    %d\n", report.Synced)
	fmt.Printf("Conflicts: %d (already recorded remotely, merged locally)\n", report.Conflicts)
	fmt.Printf("Failed:    %d\n", report.Failed)
	if report.Failed > 0 {
		fmt.Println("Failed rows stay pending and retry on the next pass")
	}
	return nil
}
