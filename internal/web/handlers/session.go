package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/session"
	"github.com/hadir-dev/hadir/internal/stream"
	"github.com/hadir-dev/hadir/internal/web/middleware"
)

// SessionHandler drives the attendance session lifecycle for the operator
// console.
type SessionHandler struct {
	coordinator *session.Coordinator
	matcher     *facematch.Matcher
	pump        *stream.Pump
	tokens      *middleware.TokenManager
	logger      *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(coordinator *session.Coordinator, matcher *facematch.Matcher, pump *stream.Pump, tokens *middleware.TokenManager, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionHandler{
		coordinator: coordinator,
		matcher:     matcher,
		pump:        pump,
		tokens:      tokens,
		logger:      logger,
	}
}

type openRequest struct {
	ClassCode string `json:"class_code"`
	PIN       string `json:"pin"`
	Pertemuan int    `json:"pertemuan"`
}

type openResponse struct {
	Session session.Descriptor `json:"session"`
	Token   string             `json:"token"`
}

// Open starts a session after validating the class PIN. The response
// carries the signed token the frame and close endpoints require.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	desc, err := h.coordinator.Open(r.Context(), req.ClassCode, req.PIN, req.Pertemuan)
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		h.logger.Warn("session open rejected", "class", sanitizeForLog(req.ClassCode))
		respondError(w, http.StatusUnauthorized, "invalid class code or PIN")
		return
	case errors.Is(err, classes.ErrUnknownClass):
		respondError(w, http.StatusNotFound, "class not found")
		return
	case errors.Is(err, session.ErrInvalidMeeting):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, session.ErrSessionActive):
		respondError(w, http.StatusConflict, "a session is already open")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	respondJSON(w, http.StatusCreated, openResponse{
		Session: desc,
		Token:   h.tokens.Issue(desc.ID),
	})
}

type statusResponse struct {
	session.Status
	DroppedFrames int64 `json:"dropped_frames"`
}

// Status reports the current session, its admissions so far, and how many
// camera frames the pump has shed.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		Status:        h.coordinator.Status(),
		DroppedFrames: h.pump.Dropped(),
	})
}

type frameRequest struct {
	Embedding []float32 `json:"embedding"`
}

// SubmitFrame matches one face embedding and feeds the result to the open
// session. The response tells the console what to display: ignored,
// pending confirmation, admitted, or duplicate.
func (h *SessionHandler) SubmitFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	res, err := h.matcher.Match(req.Embedding)
	switch {
	case errors.Is(err, database.ErrEmptyStore):
		respondError(w, http.StatusServiceUnavailable, "no students enrolled")
		return
	case err != nil:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	admission, err := h.coordinator.Submit(r.Context(), res)
	switch {
	case errors.Is(err, session.ErrSessionNotOpen):
		respondError(w, http.StatusConflict, "session not open")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to process frame")
		return
	}

	respondJSON(w, http.StatusOK, admission)
}

// Close ends the session and returns its summary.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	summary, err := h.coordinator.Close()
	if errors.Is(err, session.ErrSessionNotOpen) {
		respondError(w, http.StatusConflict, "session not open")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to close session")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
