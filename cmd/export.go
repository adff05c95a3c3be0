package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attendance rows to a CSV file",
	Long: `Export a class's attendance rows to CSV for handing in. The file
lands in the configured export directory unless --out names a path.

Examples:
  # Everything recorded for a class
  hadir export --class if4021

  # One meeting only
  hadir export --class if4021 --pertemuan 3`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("class", "", "Class code (required)")
	exportCmd.Flags().Int("pertemuan", 0, "Meeting number (0 = all meetings)")
	exportCmd.Flags().String("out", "", "Output file path (defaults under the export directory)")
	_ = exportCmd.MarkFlagRequired("class")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	classCode := mustGetString(cmd, "class")
	pertemuan := mustGetInt(cmd, "pertemuan")

	outPath := mustGetString(cmd, "out")
	if outPath == "" {
		if err := os.MkdirAll(cfg.Ledger.ExportDir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
		outPath = filepath.Join(cfg.Ledger.ExportDir, sqlite.ExportFilename(classCode, pertemuan, time.Now()))
	}

	ledger, err := sqlite.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("opening attendance ledger: %w", err)
	}
	defer ledger.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	rows, err := ledger.WriteCSV(cmd.Context(), f, classCode, pertemuan)
	if err != nil {
		return fmt.Errorf("exporting attendance: %w", err)
	}

	fmt.Printf("Wrote %d rows to %s\n", rows, outPath)
	return nil
}
