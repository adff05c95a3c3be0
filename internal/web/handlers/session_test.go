package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/session"
)

func TestSessionOpen(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()

	desc, token := openTestSession(t, h, 3)

	if desc.ClassCode != "if4021" {
		t.Errorf("class code = %q, want if4021", desc.ClassCode)
	}
	if desc.ClassName != "Jaringan Komputer" {
		t.Errorf("class name = %q", desc.ClassName)
	}
	if desc.Pertemuan != 3 {
		t.Errorf("pertemuan = %d, want 3", desc.Pertemuan)
	}

	sessionID, ok := st.tokens.Verify(token)
	if !ok || sessionID != desc.ID {
		t.Errorf("token verifies to (%q, %v), want (%q, true)", sessionID, ok, desc.ID)
	}
}

func TestSessionOpenRejections(t *testing.T) {
	cases := []struct {
		name       string
		body       openRequest
		wantStatus int
	}{
		{"wrong pin", openRequest{ClassCode: "if4021", PIN: "9999", Pertemuan: 3}, http.StatusUnauthorized},
		{"unknown class", openRequest{ClassCode: "xx9999", PIN: "1234", Pertemuan: 3}, http.StatusNotFound},
		{"meeting zero", openRequest{ClassCode: "if4021", PIN: "1234", Pertemuan: 0}, http.StatusUnprocessableEntity},
		{"meeting beyond range", openRequest{ClassCode: "if4021", PIN: "1234", Pertemuan: 17}, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newTestStack(t)
			h := st.sessionHandler()

			rec := httptest.NewRecorder()
			h.Open(rec, jsonRequest(t, http.MethodPost, "/api/v1/session", tc.body))
			assertStatusCode(t, rec, tc.wantStatus)
		})
	}
}

func TestSessionOpenWhileActive(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()
	openTestSession(t, h, 3)

	rec := httptest.NewRecorder()
	h.Open(rec, jsonRequest(t, http.MethodPost, "/api/v1/session", openRequest{
		ClassCode: "if4021", PIN: "1234", Pertemuan: 4,
	}))
	assertStatusCode(t, rec, http.StatusConflict)
}

func TestSessionOpenInvalidBody(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Open(rec, req)
	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, errInvalidRequestBody)
}

func TestSubmitFrameLifecycle(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()
	openTestSession(t, h, 3)

	submit := func(embedding []float32) session.Admission {
		rec := httptest.NewRecorder()
		h.SubmitFrame(rec, jsonRequest(t, http.MethodPost, "/api/v1/session/frames", frameRequest{Embedding: embedding}))
		assertStatusCode(t, rec, http.StatusOK)
		var adm session.Admission
		parseJSONResponse(t, rec, &adm)
		return adm
	}

	first := submit(embeddingBudi())
	if first.Outcome != session.OutcomePending || first.Streak != 1 {
		t.Fatalf("first frame = %+v, want pending_confirmation streak 1", first)
	}

	second := submit(embeddingBudi())
	if second.Outcome != session.OutcomeAdmitted {
		t.Fatalf("second frame = %+v, want admitted", second)
	}
	if second.NIM != testNIMBudi || second.Confidence != 1 {
		t.Errorf("admission = %+v, want nim %s confidence 1", second, testNIMBudi)
	}

	if again := submit(embeddingBudi()); again.Outcome != session.OutcomeDuplicate {
		t.Errorf("repeat frame = %+v, want duplicate", again)
	}
	if unknown := submit(embeddingUnknown()); unknown.Outcome != session.OutcomeIgnored {
		t.Errorf("unknown face = %+v, want ignored", unknown)
	}

	// A wrong-length embedding scores maximum distance and is ignored.
	if short := submit([]float32{1, 0}); short.Outcome != session.OutcomeIgnored {
		t.Errorf("short embedding = %+v, want ignored", short)
	}
}

func TestSubmitFrameValidation(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()
	openTestSession(t, h, 3)

	rec := httptest.NewRecorder()
	h.SubmitFrame(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/frames", strings.NewReader("not json")))
	assertStatusCode(t, rec, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	h.SubmitFrame(rec, jsonRequest(t, http.MethodPost, "/api/v1/session/frames", frameRequest{}))
	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "embedding is required")
}

func TestSubmitFrameWithoutSession(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()

	rec := httptest.NewRecorder()
	h.SubmitFrame(rec, jsonRequest(t, http.MethodPost, "/api/v1/session/frames", frameRequest{Embedding: embeddingBudi()}))
	assertStatusCode(t, rec, http.StatusConflict)
	assertJSONError(t, rec, "session not open")
}

func TestSubmitFrameEmptyIndex(t *testing.T) {
	st := newTestStack(t)
	empty := database.NewIndex(database.MetricCosine)
	h := NewSessionHandler(st.coordinator, facematch.NewMatcher(empty, 0.5, 0.05), st.pump, st.tokens, nil)
	openTestSession(t, h, 3)

	rec := httptest.NewRecorder()
	h.SubmitFrame(rec, jsonRequest(t, http.MethodPost, "/api/v1/session/frames", frameRequest{Embedding: embeddingBudi()}))
	assertStatusCode(t, rec, http.StatusServiceUnavailable)
	assertJSONError(t, rec, "no students enrolled")
}

func TestCloseSession(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()
	openTestSession(t, h, 3)
	admitTestStudent(t, h, embeddingBudi())

	rec := httptest.NewRecorder()
	h.Close(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil))
	assertStatusCode(t, rec, http.StatusOK)

	var summary session.Summary
	parseJSONResponse(t, rec, &summary)
	if summary.Count != 1 || len(summary.NIMs) != 1 || summary.NIMs[0] != testNIMBudi {
		t.Errorf("summary = %+v, want one admission for %s", summary, testNIMBudi)
	}

	rec = httptest.NewRecorder()
	h.Close(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil))
	assertStatusCode(t, rec, http.StatusConflict)
}

func TestSessionStatus(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	assertStatusCode(t, rec, http.StatusOK)

	var closed statusResponse
	parseJSONResponse(t, rec, &closed)
	if closed.State != session.StateClosed || closed.Session != nil {
		t.Errorf("idle status = %+v, want closed with no session", closed)
	}

	desc, _ := openTestSession(t, h, 3)
	admitTestStudent(t, h, embeddingBudi())

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	var open statusResponse
	parseJSONResponse(t, rec, &open)
	if open.State != session.StateOpen {
		t.Errorf("state = %q, want open", open.State)
	}
	if open.Session == nil || open.Session.ID != desc.ID {
		t.Errorf("status session = %+v, want descriptor %s", open.Session, desc.ID)
	}
	if len(open.Admissions) != 1 || open.Admissions[0].NIM != testNIMBudi {
		t.Errorf("admissions = %+v, want one for %s", open.Admissions, testNIMBudi)
	}
}

// syncRecorder is a flushable response writer safe to read while the SSE
// handler writes from another goroutine.
type syncRecorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	header http.Header
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: make(http.Header)}
}

func (r *syncRecorder) Header() http.Header { return r.header }

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *syncRecorder) WriteHeader(int) {}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// waitForBody polls the recorder until the substring shows up or the
// deadline passes.
func waitForBody(rec *syncRecorder, substr string, deadline time.Duration) bool {
	until := time.Now().Add(deadline)
	for !strings.Contains(rec.String(), substr) {
		if time.Now().After(until) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

func TestEventsStream(t *testing.T) {
	st := newTestStack(t)
	h := st.sessionHandler()
	openTestSession(t, h, 3)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/events", nil).WithContext(ctx)
	rec := newSyncRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Events(rec, req)
	}()

	// The snapshot is written after the listener attaches, so once it shows
	// up the stream is guaranteed to see the admission below.
	if !waitForBody(rec, "event: status", 2*time.Second) {
		cancel()
		<-done
		t.Fatalf("stream never sent the status snapshot:\n%s", rec.String())
	}

	res, err := st.matcher.Match(embeddingBudi())
	if err != nil {
		t.Errorf("matching: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := st.coordinator.Submit(context.Background(), res); err != nil {
			t.Errorf("submitting: %v", err)
		}
	}

	if !waitForBody(rec, "event: admission", 2*time.Second) {
		t.Errorf("stream missing admission event:\n%s", rec.String())
	}
	cancel()
	<-done

	if body := rec.String(); !strings.Contains(body, testNIMBudi) {
		t.Errorf("admission event missing student NIM:\n%s", body)
	}
}
