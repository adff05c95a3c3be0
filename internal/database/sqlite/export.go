package sqlite

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hadir-dev/hadir/internal/database"
)

// ExportFilename builds the conventional export name for a class. A
// pertemuan of zero exports the whole class and drops the meeting part.
func ExportFilename(classCode string, pertemuan int, now time.Time) string {
	ts := now.Format("20060102_150405")
	code := strings.ToLower(classCode)
	if pertemuan > 0 {
		return fmt.Sprintf("attendance_%s_pertemuan_%d_%s.csv", code, pertemuan, ts)
	}
	return fmt.Sprintf("attendance_%s_%s.csv", code, ts)
}

// WriteCSV streams the class's attendance records to w as CSV, mirroring the
// ledger columns. A pertemuan of zero exports every meeting. Returns the
// number of data rows written.
func (l *Ledger) WriteCSV(ctx context.Context, w io.Writer, classCode string, pertemuan int) (int, error) {
	var (
		records []database.AttendanceRecord
		err     error
	)
	if pertemuan > 0 {
		records, err = l.RecordsByMeeting(ctx, classCode, pertemuan)
	} else {
		records, err = l.Records(ctx, classCode)
	}
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "nim", "name", "absentime", "status", "pertemuan"}); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.NIM,
			rec.Name,
			rec.AbsenTime.Format(database.TimeLayout),
			string(rec.Status),
			strconv.Itoa(rec.Pertemuan),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(records), nil
}
