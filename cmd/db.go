package cmd

import (
	"fmt"
	"strconv"

	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the local attendance ledger",
}

var dbTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List classes with attendance tables",
	RunE:  runDBTables,
}

var dbRowsCmd = &cobra.Command{
	Use:   "rows",
	Short: "Print attendance rows for a class",
	RunE:  runDBRows,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize sync state per class",
	RunE:  runDBStats,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbTablesCmd)
	dbCmd.AddCommand(dbRowsCmd)
	dbCmd.AddCommand(dbStatsCmd)

	dbRowsCmd.Flags().String("class", "", "Class code (required)")
	dbRowsCmd.Flags().Int("pertemuan", 0, "Filter by meeting number (0 = all)")
	_ = dbRowsCmd.MarkFlagRequired("class")
}

// openLedger opens the configured ledger for inspection commands.
func openLedger() (*sqlite.Ledger, error) {
	cfg := config.Load()
	ledger, err := sqlite.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening attendance ledger: %w", err)
	}
	return ledger, nil
}

func runDBTables(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	codes, err := ledger.Classes(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing class tables: %w", err)
	}
	if len(codes) == 0 {
		fmt.Println("No attendance tables yet")
		return nil
	}

	for _, code := range codes {
		fmt.Println(code)
	}
	return nil
}

func runDBRows(cmd *cobra.Command, args []string) error {
	classCode := mustGetString(cmd, "class")
	pertemuan := mustGetInt(cmd, "pertemuan")

	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	var records []database.AttendanceRecord
	if pertemuan > 0 {
		records, err = ledger.RecordsByMeeting(cmd.Context(), classCode, pertemuan)
	} else {
		records, err = ledger.Records(cmd.Context(), classCode)
	}
	if err != nil {
		return fmt.Errorf("reading attendance rows: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No rows")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.NIM,
			rec.Name,
			rec.AbsenTime.Format(database.TimeLayout),
			string(rec.Status),
			strconv.Itoa(rec.Pertemuan),
		})
	}

	fmt.Println(renderTable(
		[]string{"ID", "NIM", "Name", "Absen Time", "Status", "Pertemuan"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	fmt.Printf("%d rows\n", len(records))
	return nil
}

func runDBStats(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	stats, err := ledger.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading ledger stats: %w", err)
	}
	if len(stats) == 0 {
		fmt.Println("No attendance tables yet")
		return nil
	}

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.ClassCode,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Pending),
			strconv.Itoa(s.Sukses),
		})
	}

	fmt.Println(renderTable(
		[]string{"Class", "Total", "Pending", "Sukses"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
	return nil
}
