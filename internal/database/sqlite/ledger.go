// Package sqlite implements the local attendance ledger. Every class gets
// its own attendance table so the on-disk layout stays compatible with the
// campus tooling that reads these files directly.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hadir-dev/hadir/internal/database"
)

const recordColumns = "id, nim, name, absentime, status, pertemuan"

// Ledger manages attendance persistence backed by SQLite.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database at path, creating the
// parent directory when needed.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	return &Ledger{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// EnsureClass creates the class's attendance table and its uniqueness index
// if they do not exist yet. Safe to call on every session open.
func (l *Ledger) EnsureClass(ctx context.Context, classCode string) error {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nim TEXT NOT NULL,
			name TEXT NOT NULL,
			absentime TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			pertemuan INTEGER NOT NULL
		)`, table)
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	idx := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_nim_pertemuan ON %s (nim, pertemuan)",
		table, table,
	)
	if _, err := l.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create index on %s: %w", table, err)
	}
	return nil
}

// Insert writes one attendance record. It reports false without error when a
// record for the same (nim, pertemuan) already exists, so double submissions
// stay harmless. A zero AbsenTime is stamped with the current time and an
// empty status defaults to pending.
func (l *Ledger) Insert(ctx context.Context, classCode string, rec database.AttendanceRecord) (bool, error) {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return false, err
	}

	if rec.AbsenTime.IsZero() {
		rec.AbsenTime = time.Now()
	}
	if rec.Status == "" {
		rec.Status = database.StatusPending
	}
	if !rec.Status.Valid() {
		return false, fmt.Errorf("invalid status %q", rec.Status)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (nim, name, absentime, status, pertemuan)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (nim, pertemuan) DO NOTHING`, table)

	res, err := l.db.ExecContext(ctx, query,
		rec.NIM,
		rec.Name,
		rec.AbsenTime.Format(database.TimeLayout),
		string(rec.Status),
		rec.Pertemuan,
	)
	if err != nil {
		return false, fmt.Errorf("insert attendance into %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Pending returns all records still waiting for remote reconciliation,
// oldest first.
func (l *Ledger) Pending(ctx context.Context, classCode string) ([]database.AttendanceRecord, error) {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = ? ORDER BY id", recordColumns, table,
	)
	return l.queryRecords(ctx, query, string(database.StatusPending))
}

// Records returns every record of the class ordered by meeting, then time.
func (l *Ledger) Records(ctx context.Context, classCode string) ([]database.AttendanceRecord, error) {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY pertemuan, absentime, id", recordColumns, table,
	)
	return l.queryRecords(ctx, query)
}

// RecordsByMeeting returns the class's records for a single pertemuan.
func (l *Ledger) RecordsByMeeting(ctx context.Context, classCode string, pertemuan int) ([]database.AttendanceRecord, error) {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE pertemuan = ? ORDER BY absentime, id", recordColumns, table,
	)
	return l.queryRecords(ctx, query, pertemuan)
}

// MarkSukses flips one record to sukses after its remote write is confirmed.
func (l *Ledger) MarkSukses(ctx context.Context, classCode string, id int64) error {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET status = ? WHERE id = ?", table)
	res, err := l.db.ExecContext(ctx, query, string(database.StatusSukses), id)
	if err != nil {
		return fmt.Errorf("mark sukses in %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %d not found in %s", id, table)
	}
	return nil
}

// Classes lists the class codes that have an attendance table in this ledger.
func (l *Ledger) Classes(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name LIKE 'attendance_%'
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendance tables: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		codes = append(codes, name[len("attendance_"):])
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return codes, nil
}

// Stats reports per-class totals and status counts.
func (l *Ledger) Stats(ctx context.Context) ([]database.ClassStats, error) {
	codes, err := l.Classes(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]database.ClassStats, 0, len(codes))
	for _, code := range codes {
		table, err := database.ClassTable(code)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`
			SELECT
				COUNT(*),
				COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'sukses' THEN 1 ELSE 0 END), 0)
			FROM %s`, table)

		var st database.ClassStats
		st.ClassCode = code
		if err := l.db.QueryRowContext(ctx, query).Scan(&st.Total, &st.Pending, &st.Sukses); err != nil {
			return nil, fmt.Errorf("stats for %s: %w", table, err)
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func (l *Ledger) queryRecords(ctx context.Context, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance rows: %w", err)
	}
	return records, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (database.AttendanceRecord, error) {
	var (
		rec     database.AttendanceRecord
		rawTime string
		status  string
	)
	if err := scanner.Scan(&rec.ID, &rec.NIM, &rec.Name, &rawTime, &status, &rec.Pertemuan); err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("scan attendance row: %w", err)
	}

	ts, err := time.ParseInLocation(database.TimeLayout, rawTime, time.Local)
	if err != nil {
		return database.AttendanceRecord{}, fmt.Errorf("parse absentime %q: %w", rawTime, err)
	}
	rec.AbsenTime = ts
	rec.Status = database.Status(status)
	return rec, nil
}
