package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hadir-dev/hadir/internal/database"
)

// EnsureTable creates the class's remote attendance table if missing. The
// columns mirror the local ledger exactly.
func (p *Pool) EnsureTable(ctx context.Context, classCode string) error {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			nim VARCHAR(9) NOT NULL,
			name VARCHAR(255) NOT NULL,
			absentime DATETIME NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			pertemuan INT NOT NULL,
			UNIQUE KEY uniq_nim_pertemuan (nim, pertemuan)
		)`, table)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create remote table %s: %w", table, err)
	}
	return nil
}

// FetchStatus looks up the remote status for one (nim, pertemuan) key.
// found is false when the remote has no row yet.
func (p *Pool) FetchStatus(ctx context.Context, classCode, nim string, pertemuan int) (database.Status, bool, error) {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return "", false, err
	}

	query := fmt.Sprintf("SELECT status FROM %s WHERE nim = ? AND pertemuan = ?", table)

	var status string
	err = p.db.QueryRowContext(ctx, query, nim, pertemuan).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch remote status from %s: %w", table, err)
	}
	return database.Status(status), true, nil
}

// Upsert writes one attendance record as sukses, keyed by (nim, pertemuan).
// An existing row is refreshed rather than duplicated, so replaying a record
// is harmless.
func (p *Pool) Upsert(ctx context.Context, classCode string, rec database.AttendanceRecord) error {
	table, err := database.ClassTable(classCode)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (nim, name, absentime, status, pertemuan)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			absentime = VALUES(absentime),
			status = VALUES(status)`, table)

	_, err = p.db.ExecContext(ctx, query,
		rec.NIM,
		rec.Name,
		rec.AbsenTime.Format(database.TimeLayout),
		string(database.StatusSukses),
		rec.Pertemuan,
	)
	if err != nil {
		return fmt.Errorf("upsert attendance into %s: %w", table, err)
	}
	return nil
}
