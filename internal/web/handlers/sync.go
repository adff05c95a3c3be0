package handlers

import (
	"errors"
	"net/http"

	"github.com/hadir-dev/hadir/internal/syncer"
)

// SyncHandler triggers reconciliation with the campus store on demand.
type SyncHandler struct {
	reconciler *syncer.Reconciler
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(reconciler *syncer.Reconciler) *SyncHandler {
	return &SyncHandler{reconciler: reconciler}
}

type syncResponse struct {
	syncer.Report
	RemoteConfigured bool   `json:"remote_configured"`
	Error            string `json:"error,omitempty"`
}

// Trigger runs one reconciliation pass and returns its report. Partial
// failure still answers 200: the report tells the console what remains
// pending for the next pass.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Reconcile(r.Context())

	resp := syncResponse{
		Report:           report,
		RemoteConfigured: h.reconciler.Enabled(),
	}
	switch {
	case errors.Is(err, syncer.ErrRemoteUnavailable):
		resp.Error = err.Error()
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
