package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/logging"
)

// AttendanceHandler serves ledger rows and CSV exports.
type AttendanceHandler struct {
	ledger *sqlite.Ledger
	logger *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(ledger *sqlite.Ledger, logger *slog.Logger) *AttendanceHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AttendanceHandler{ledger: ledger, logger: logger}
}

type attendanceRow struct {
	ID        int64  `json:"id"`
	NIM       string `json:"nim"`
	Name      string `json:"name"`
	AbsenTime string `json:"absentime"`
	Status    string `json:"status"`
	Pertemuan int    `json:"pertemuan"`
}

type attendanceResponse struct {
	ClassCode string          `json:"class_code"`
	Pertemuan int             `json:"pertemuan,omitempty"`
	Count     int             `json:"count"`
	Records   []attendanceRow `json:"records"`
}

// resolveClass validates the class URL parameter and checks the ledger has
// a table for it. Writes an error response and returns false on failure.
func (h *AttendanceHandler) resolveClass(w http.ResponseWriter, r *http.Request) (string, bool) {
	classCode := chi.URLParam(r, "class")
	if !database.ValidClassCode(classCode) {
		respondError(w, http.StatusBadRequest, "invalid class code")
		return "", false
	}

	known, err := h.ledger.Classes(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read ledger")
		return "", false
	}
	for _, c := range known {
		if c == classCode {
			return classCode, true
		}
	}
	respondError(w, http.StatusNotFound, "class not found")
	return "", false
}

// parsePertemuan reads the optional ?pertemuan= query parameter. Zero means
// all meetings.
func parsePertemuan(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("pertemuan")
	if raw == "" {
		return 0, true
	}
	pertemuan, err := strconv.Atoi(raw)
	if err != nil || pertemuan < 1 {
		respondError(w, http.StatusBadRequest, "pertemuan must be a positive number")
		return 0, false
	}
	return pertemuan, true
}

// List returns a class's attendance rows, optionally for one meeting.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	classCode, ok := h.resolveClass(w, r)
	if !ok {
		return
	}
	pertemuan, ok := parsePertemuan(w, r)
	if !ok {
		return
	}

	var (
		records []database.AttendanceRecord
		err     error
	)
	if pertemuan > 0 {
		records, err = h.ledger.RecordsByMeeting(r.Context(), classCode, pertemuan)
	} else {
		records, err = h.ledger.Records(r.Context(), classCode)
	}
	if err != nil {
		h.logger.Error("failed to read attendance", "class", classCode, logging.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read attendance")
		return
	}

	rows := make([]attendanceRow, len(records))
	for i, rec := range records {
		rows[i] = attendanceRow{
			ID:        rec.ID,
			NIM:       rec.NIM,
			Name:      rec.Name,
			AbsenTime: rec.AbsenTime.Format(database.TimeLayout),
			Status:    string(rec.Status),
			Pertemuan: rec.Pertemuan,
		}
	}

	respondJSON(w, http.StatusOK, attendanceResponse{
		ClassCode: classCode,
		Pertemuan: pertemuan,
		Count:     len(rows),
		Records:   rows,
	})
}

// Export streams a class's rows as a CSV download.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	classCode, ok := h.resolveClass(w, r)
	if !ok {
		return
	}
	pertemuan, ok := parsePertemuan(w, r)
	if !ok {
		return
	}

	filename := sqlite.ExportFilename(classCode, pertemuan, time.Now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	// Headers are out the door, an error here can only truncate the file.
	if _, err := h.ledger.WriteCSV(r.Context(), w, classCode, pertemuan); err != nil {
		h.logger.Error("csv export failed", "class", classCode, logging.Error(err))
	}
}
