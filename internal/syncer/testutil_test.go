package syncer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/logging"
)

// errUnreachable looks like a refused TCP dial so the retry classifier
// treats it as transient.
var errUnreachable net.Error = &net.OpError{
	Op:  "dial",
	Net: "tcp",
	Err: errors.New("connect: connection refused"),
}

type fakeLedger struct {
	mu      sync.Mutex
	classes []string
	pending map[string][]database.AttendanceRecord
	marked  map[string][]int64

	pendingErr error
	markErr    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		pending: make(map[string][]database.AttendanceRecord),
		marked:  make(map[string][]int64),
	}
}

func (l *fakeLedger) addPending(classCode string, rec database.AttendanceRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending[classCode]) == 0 {
		present := false
		for _, c := range l.classes {
			if c == classCode {
				present = true
			}
		}
		if !present {
			l.classes = append(l.classes, classCode)
		}
	}
	rec.Status = database.StatusPending
	l.pending[classCode] = append(l.pending[classCode], rec)
}

func (l *fakeLedger) Classes(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.classes))
	copy(out, l.classes)
	return out, nil
}

func (l *fakeLedger) Pending(ctx context.Context, classCode string) ([]database.AttendanceRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingErr != nil {
		return nil, l.pendingErr
	}
	out := make([]database.AttendanceRecord, len(l.pending[classCode]))
	copy(out, l.pending[classCode])
	return out, nil
}

func (l *fakeLedger) MarkSukses(ctx context.Context, classCode string, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return l.markErr
	}
	rows := l.pending[classCode]
	for i, rec := range rows {
		if rec.ID == id {
			l.pending[classCode] = append(rows[:i], rows[i+1:]...)
			l.marked[classCode] = append(l.marked[classCode], id)
			return nil
		}
	}
	return fmt.Errorf("record %d not found", id)
}

func (l *fakeLedger) pendingCount(classCode string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending[classCode])
}

func (l *fakeLedger) markedCount(classCode string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.marked[classCode])
}

type fakeRemote struct {
	mu   sync.Mutex
	rows map[string]database.Status

	ensureCalls int
	fetchCalls  int
	upsertCalls int

	// unreachable makes every call fail like a dead network.
	unreachable bool

	// fetchFailures and upsertFailures fail that many calls with failErr
	// before succeeding again.
	fetchFailures  int
	upsertFailures int
	failErr        error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]database.Status)}
}

func remoteKey(classCode, nim string, pertemuan int) string {
	return fmt.Sprintf("%s/%s/%d", classCode, nim, pertemuan)
}

func (r *fakeRemote) seed(classCode, nim string, pertemuan int, status database.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[remoteKey(classCode, nim, pertemuan)] = status
}

func (r *fakeRemote) EnsureTable(ctx context.Context, classCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCalls++
	if r.unreachable {
		return errUnreachable
	}
	return nil
}

func (r *fakeRemote) FetchStatus(ctx context.Context, classCode, nim string, pertemuan int) (database.Status, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchCalls++
	if r.unreachable {
		return "", false, errUnreachable
	}
	if r.fetchFailures > 0 {
		r.fetchFailures--
		return "", false, r.failErr
	}
	status, found := r.rows[remoteKey(classCode, nim, pertemuan)]
	return status, found, nil
}

func (r *fakeRemote) Upsert(ctx context.Context, classCode string, rec database.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	if r.unreachable {
		return errUnreachable
	}
	if r.upsertFailures > 0 {
		r.upsertFailures--
		return r.failErr
	}
	r.rows[remoteKey(classCode, rec.NIM, rec.Pertemuan)] = database.StatusSukses
	return nil
}

func (r *fakeRemote) statusOf(classCode, nim string, pertemuan int) (database.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, found := r.rows[remoteKey(classCode, nim, pertemuan)]
	return status, found
}

func (r *fakeRemote) upserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertCalls
}

func testConfig() Config {
	return Config{
		Interval:    time.Hour,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}
}

func newTestReconciler(t *testing.T, led *fakeLedger, rem remote) *Reconciler {
	t.Helper()
	return New(led, rem, testConfig(), logging.NewNop())
}

func pendingRecord(id int64, nim string, pertemuan int) database.AttendanceRecord {
	return database.AttendanceRecord{
		ID:        id,
		NIM:       nim,
		Name:      "Student " + nim,
		AbsenTime: time.Date(2026, 3, 10, 8, 15, 0, 0, time.Local),
		Status:    database.StatusPending,
		Pertemuan: pertemuan,
	}
}
