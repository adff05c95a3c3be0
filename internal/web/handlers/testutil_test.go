package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/session"
	"github.com/hadir-dev/hadir/internal/stream"
	"github.com/hadir-dev/hadir/internal/syncer"
	"github.com/hadir-dev/hadir/internal/web/middleware"
)

const (
	testNIMBudi = "118130001"
	testNIMSiti = "118130002"
)

// testStack wires real components over temp files so handlers are tested
// against the same stack the daemon runs.
type testStack struct {
	coordinator *session.Coordinator
	matcher     *facematch.Matcher
	pump        *stream.Pump
	index       *database.Index
	ledger      *sqlite.Ledger
	registry    *classes.Registry
	tokens      *middleware.TokenManager
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	dir := t.TempDir()

	ledger, err := sqlite.Open(filepath.Join(dir, "attendance.db"))
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	registry, err := classes.Open(filepath.Join(dir, "classes.yaml"))
	if err != nil {
		t.Fatalf("opening registry: %v", err)
	}
	if _, err := registry.Add("if4021", "Jaringan Komputer", "1234", 16); err != nil {
		t.Fatalf("adding class: %v", err)
	}

	index := database.NewIndex(database.MetricCosine)
	if err := index.Load([]database.Identity{
		{NIM: testNIMBudi, Name: "Budi Santoso", Embeddings: [][]float32{embeddingBudi()}},
		{NIM: testNIMSiti, Name: "Siti Aminah", Embeddings: [][]float32{embeddingSiti()}},
	}); err != nil {
		t.Fatalf("loading index: %v", err)
	}

	matcher := facematch.NewMatcher(index, 0.5, 0.05)
	coordinator := session.New(registry, ledger, session.Config{
		DebounceFrames: 2,
		DebounceWindow: 2 * time.Second,
		OpenTimeout:    5 * time.Second,
	}, nil)
	pump := stream.NewPump(matcher, coordinator, 8, nil)

	return &testStack{
		coordinator: coordinator,
		matcher:     matcher,
		pump:        pump,
		index:       index,
		ledger:      ledger,
		registry:    registry,
		tokens:      middleware.NewTokenManager("test-secret"),
	}
}

func (st *testStack) sessionHandler() *SessionHandler {
	return NewSessionHandler(st.coordinator, st.matcher, st.pump, st.tokens, nil)
}

func (st *testStack) newReconciler(rem *stubRemote) *syncer.Reconciler {
	cfg := syncer.Config{
		Interval:    time.Hour,
		Timeout:     5 * time.Second,
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
	}
	if rem == nil {
		return syncer.New(st.ledger, nil, cfg, nil)
	}
	return syncer.New(st.ledger, rem, cfg, nil)
}

func embeddingBudi() []float32 { return []float32{1, 0, 0, 0} }
func embeddingSiti() []float32 { return []float32{0, 1, 0, 0} }

// embeddingUnknown is far from every enrolled student.
func embeddingUnknown() []float32 { return []float32{0, 0, 0, 1} }

// openTestSession opens a session through the handler and returns the token.
func openTestSession(t *testing.T, h *SessionHandler, pertemuan int) (session.Descriptor, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Open(rec, jsonRequest(t, http.MethodPost, "/api/v1/session", openRequest{
		ClassCode: "if4021",
		PIN:       "1234",
		Pertemuan: pertemuan,
	}))
	assertStatusCode(t, rec, http.StatusCreated)

	var resp openResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("open response carries no token")
	}
	return resp.Session, resp.Token
}

// admitTestStudent pushes confirming frames until the student is admitted.
func admitTestStudent(t *testing.T, h *SessionHandler, embedding []float32) {
	t.Helper()
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.SubmitFrame(rec, jsonRequest(t, http.MethodPost, "/api/v1/session/frames", frameRequest{Embedding: embedding}))
		assertStatusCode(t, rec, http.StatusOK)
	}
}

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		t.Fatalf("encoding request body: %v", err)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Fatalf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// seedAttendance writes a row straight into the ledger.
func seedAttendance(t *testing.T, ledger *sqlite.Ledger, classCode, nim string, pertemuan int, status database.Status) {
	t.Helper()
	ctx := context.Background()
	if err := ledger.EnsureClass(ctx, classCode); err != nil {
		t.Fatalf("ensuring class table: %v", err)
	}
	inserted, err := ledger.Insert(ctx, classCode, database.AttendanceRecord{
		NIM:       nim,
		Name:      "Student " + nim,
		AbsenTime: time.Date(2026, 3, 10, 8, 15, 42, 0, time.Local),
		Status:    status,
		Pertemuan: pertemuan,
	})
	if err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	if !inserted {
		t.Fatalf("row for %s pertemuan %d already present", nim, pertemuan)
	}
}

// stubRemote is an in-memory campus store for sync handler tests.
type stubRemote struct {
	mu   sync.Mutex
	rows map[string]database.Status
}

func newStubRemote() *stubRemote {
	return &stubRemote{rows: make(map[string]database.Status)}
}

func (r *stubRemote) EnsureTable(ctx context.Context, classCode string) error { return nil }

func (r *stubRemote) FetchStatus(ctx context.Context, classCode, nim string, pertemuan int) (database.Status, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, found := r.rows[fmt.Sprintf("%s/%s/%d", classCode, nim, pertemuan)]
	return status, found, nil
}

func (r *stubRemote) Upsert(ctx context.Context, classCode string, rec database.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[fmt.Sprintf("%s/%s/%d", classCode, rec.NIM, rec.Pertemuan)] = database.StatusSukses
	return nil
}

func (r *stubRemote) has(classCode, nim string, pertemuan int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, found := r.rows[fmt.Sprintf("%s/%s/%d", classCode, nim, pertemuan)]
	return found
}
