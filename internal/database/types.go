// Package database holds the domain types shared across storage backends
// and the in-memory embedding index used for identity matching.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is the sync state of an attendance record.
type Status string

const (
	// StatusPending marks a record captured locally but not yet reconciled.
	StatusPending Status = "pending"

	// StatusSukses marks a record confirmed in the durable store.
	StatusSukses Status = "sukses"
)

// Valid reports whether s is one of the two known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusSukses
}

// Identity is one enrolled student with their reference embeddings.
// NIM is the 9-digit student number and uniquely identifies the identity.
// An identity always carries at least one embedding.
type Identity struct {
	NIM        string
	Name       string
	Embeddings [][]float32
}

// AttendanceRecord is one row of a per-class attendance table.
// Column names are part of the storage contract: id, nim, name,
// absentime, status, pertemuan.
type AttendanceRecord struct {
	ID        int64
	NIM       string
	Name      string
	AbsenTime time.Time
	Status    Status
	Pertemuan int
}

// ClassStats summarizes one class table for inspection commands.
type ClassStats struct {
	ClassCode string
	Total     int
	Pending   int
	Sukses    int
}

// IdentitySource supplies the enrolled identities the index is built from.
// Implemented by the Postgres enrollment repository and by manifest files.
type IdentitySource interface {
	Identities(ctx context.Context) ([]Identity, error)
}

// ValidNIM reports whether s is a well-formed student number: exactly nine
// decimal digits, the format the campus systems use.
func ValidNIM(s string) bool {
	if len(s) != 9 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidClassCode reports whether s is safe to embed in a table name:
// letters, digits, underscore, 1-32 chars.
func ValidClassCode(s string) bool {
	if len(s) == 0 || len(s) > 32 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// ClassTable maps a class code to its attendance table name. Both the local
// ledger and the remote store use the same naming, attendance_<class_code>,
// which is part of the storage contract. The code is validated before it is
// ever interpolated into SQL.
func ClassTable(classCode string) (string, error) {
	if !ValidClassCode(classCode) {
		return "", fmt.Errorf("invalid class code %q", classCode)
	}
	return "attendance_" + strings.ToLower(classCode), nil
}
