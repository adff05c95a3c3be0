package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/logging"
)

// EnrollmentsHandler reloads the in-memory embedding index from the
// enrollment source, so new students become matchable without a restart.
type EnrollmentsHandler struct {
	index  *database.Index
	source database.IdentitySource
	logger *slog.Logger
}

// NewEnrollmentsHandler creates a new enrollments handler. source may be
// nil when the kiosk runs without an enrollment backend.
func NewEnrollmentsHandler(index *database.Index, source database.IdentitySource, logger *slog.Logger) *EnrollmentsHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EnrollmentsHandler{index: index, source: source, logger: logger}
}

type reloadResponse struct {
	Students   int `json:"students"`
	Embeddings int `json:"embeddings"`
}

// Reload swaps the index contents for the source's current identities.
// A session can stay open across the reload; in-flight matches see either
// the old or the new index, never a partial one.
func (h *EnrollmentsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		respondError(w, http.StatusServiceUnavailable, "no enrollment source configured")
		return
	}

	identities, err := h.source.Identities(r.Context())
	if err != nil {
		h.logger.Error("failed to read enrollments", logging.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read enrollments")
		return
	}

	if err := h.index.Load(identities); err != nil {
		if errors.Is(err, database.ErrEmptyStore) {
			respondError(w, http.StatusUnprocessableEntity, "enrollment source holds no students")
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.logger.Info("enrollment index reloaded",
		"students", h.index.Count(),
		"embeddings", h.index.EmbeddingCount(),
	)
	respondJSON(w, http.StatusOK, reloadResponse{
		Students:   h.index.Count(),
		Embeddings: h.index.EmbeddingCount(),
	})
}
