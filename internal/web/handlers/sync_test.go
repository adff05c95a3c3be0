package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hadir-dev/hadir/internal/database"
)

func TestSyncTrigger(t *testing.T) {
	st := newTestStack(t)
	seedAttendance(t, st.ledger, "if4021", testNIMBudi, 3, database.StatusPending)
	remote := newStubRemote()
	h := NewSyncHandler(st.newReconciler(remote))

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	assertStatusCode(t, rec, http.StatusOK)

	var resp syncResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Synced != 1 || resp.Failed != 0 || resp.Conflicts != 0 {
		t.Errorf("report = %+v, want 1 synced", resp.Report)
	}
	if !resp.RemoteConfigured {
		t.Error("remote_configured = false, want true")
	}
	if resp.Error != "" {
		t.Errorf("error = %q, want empty", resp.Error)
	}

	if !remote.has("if4021", testNIMBudi, 3) {
		t.Error("row never reached the remote store")
	}
	pending, err := st.ledger.Pending(context.Background(), "if4021")
	if err != nil {
		t.Fatalf("reading pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after sync = %d, want 0", len(pending))
	}
}

func TestSyncTriggerWithoutRemote(t *testing.T) {
	st := newTestStack(t)
	seedAttendance(t, st.ledger, "if4021", testNIMBudi, 3, database.StatusPending)
	h := NewSyncHandler(st.newReconciler(nil))

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	assertStatusCode(t, rec, http.StatusOK)

	var resp syncResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Failed != 1 {
		t.Errorf("failed = %d, want 1 with no remote", resp.Failed)
	}
	if resp.RemoteConfigured {
		t.Error("remote_configured = true, want false")
	}
	if resp.Error == "" {
		t.Error("error message missing for unconfigured remote")
	}
}
