package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/stream"
	"github.com/hadir-dev/hadir/internal/syncer"
)

// StatsHandler reports what the kiosk holds: enrollment index size, ledger
// counts per class, pump drops, and the last sync outcome.
type StatsHandler struct {
	index      *database.Index
	ledger     *sqlite.Ledger
	pump       *stream.Pump
	reconciler *syncer.Reconciler
	logger     *slog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(index *database.Index, ledger *sqlite.Ledger, pump *stream.Pump, reconciler *syncer.Reconciler, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StatsHandler{
		index:      index,
		ledger:     ledger,
		pump:       pump,
		reconciler: reconciler,
		logger:     logger,
	}
}

type classStatsRow struct {
	ClassCode string `json:"class_code"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
	Sukses    int    `json:"sukses"`
}

type syncStats struct {
	Enabled    bool          `json:"enabled"`
	LastRun    string        `json:"last_run,omitempty"`
	LastReport syncer.Report `json:"last_report"`
}

type statsResponseBody struct {
	EnrolledStudents int             `json:"enrolled_students"`
	Embeddings       int             `json:"embeddings"`
	Classes          []classStatsRow `json:"classes"`
	DroppedFrames    int64           `json:"dropped_frames"`
	Sync             syncStats       `json:"sync"`
}

// Get returns kiosk statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	classStats, err := h.ledger.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to read ledger stats", logging.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read ledger stats")
		return
	}

	rows := make([]classStatsRow, len(classStats))
	for i, cs := range classStats {
		rows[i] = classStatsRow{
			ClassCode: cs.ClassCode,
			Total:     cs.Total,
			Pending:   cs.Pending,
			Sukses:    cs.Sukses,
		}
	}

	lastRun, lastReport := h.reconciler.LastOutcome()
	sync := syncStats{
		Enabled:    h.reconciler.Enabled(),
		LastReport: lastReport,
	}
	if !lastRun.IsZero() {
		sync.LastRun = lastRun.Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, statsResponseBody{
		EnrolledStudents: h.index.Count(),
		Embeddings:       h.index.EmbeddingCount(),
		Classes:          rows,
		DroppedFrames:    h.pump.Dropped(),
		Sync:             sync,
	})
}
