package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/database"
)

// fakeRegistry authorizes a fixed set of class/PIN pairs.
type fakeRegistry struct {
	pins     map[string]string // code -> pin
	meetings int
}

func (f *fakeRegistry) Authorize(ctx context.Context, code, pin string) (classes.Class, error) {
	if err := ctx.Err(); err != nil {
		return classes.Class{}, err
	}
	want, ok := f.pins[code]
	if !ok {
		return classes.Class{}, fmt.Errorf("%w: %s", classes.ErrUnknownClass, code)
	}
	if want != pin {
		return classes.Class{}, fmt.Errorf("%w for class %s", classes.ErrInvalidPIN, code)
	}
	return classes.Class{Code: code, Name: "Test Class", Meetings: f.meetings}, nil
}

// fakeLedger records inserts in memory with the same (nim, pertemuan)
// uniqueness the real ledger enforces.
type fakeLedger struct {
	mu        sync.Mutex
	ensured   []string
	records   []database.AttendanceRecord
	insertErr error
}

func (f *fakeLedger) EnsureClass(ctx context.Context, classCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, classCode)
	return nil
}

func (f *fakeLedger) Insert(ctx context.Context, classCode string, rec database.AttendanceRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	for _, existing := range f.records {
		if existing.NIM == rec.NIM && existing.Pertemuan == rec.Pertemuan {
			return false, nil
		}
	}
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return true, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeLedger) record(i int) database.AttendanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[i]
}

func testCoordinator(t *testing.T) (*Coordinator, *fakeLedger) {
	t.Helper()
	led := &fakeLedger{}
	reg := &fakeRegistry{pins: map[string]string{"if4021": "1234"}, meetings: 16}
	coord := New(reg, led, Config{
		DebounceFrames: 3,
		DebounceWindow: 2 * time.Second,
		OpenTimeout:    5 * time.Second,
	}, nil)
	return coord, led
}

// fakeClock drives the coordinator's sense of time in window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
