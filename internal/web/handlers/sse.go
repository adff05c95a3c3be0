package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// Events streams admission events to the operator console so it can update
// the attendance list without polling. The stream opens regardless of
// session state; a status snapshot is sent first, then one event per
// admitted student until the client disconnects.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventCh := h.coordinator.Events().AddListener()
	defer h.coordinator.Events().RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", statusResponse{
		Status:        h.coordinator.Status(),
		DroppedFrames: h.pump.Dropped(),
	})

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "admission", event)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
