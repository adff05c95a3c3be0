package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/logging"
)

// registry authorizes a class code and PIN pair.
type registry interface {
	Authorize(ctx context.Context, code, pin string) (classes.Class, error)
}

// ledger persists admitted attendance records.
type ledger interface {
	EnsureClass(ctx context.Context, classCode string) error
	Insert(ctx context.Context, classCode string, rec database.AttendanceRecord) (bool, error)
}

// Config holds the session tuning knobs.
type Config struct {
	// DebounceFrames is how many confirming frames of the same student
	// must arrive before admission.
	DebounceFrames int
	// DebounceWindow bounds the age of a confirming streak.
	DebounceWindow time.Duration
	// OpenTimeout bounds PIN validation on open.
	OpenTimeout time.Duration
}

// Coordinator is the long-lived attendance session state machine. One
// instance serves the whole process; Open/Submit/Close serialize on a
// single mutex so the admitted set and debounce streak never race.
type Coordinator struct {
	registry registry
	ledger   ledger
	events   *Broadcaster
	logger   *slog.Logger
	cfg      Config

	mu          sync.Mutex
	state       State
	desc        Descriptor
	admitted    map[string]struct{}
	admissions  []AdmissionEvent
	streakNIM   string
	streakCount int
	streakStart time.Time

	now func() time.Time
}

// New creates a closed coordinator.
func New(reg registry, led ledger, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		registry: reg,
		ledger:   led,
		events:   &Broadcaster{},
		logger:   logger,
		cfg:      cfg,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Events exposes the admission feed for live consumers.
func (c *Coordinator) Events() *Broadcaster {
	return c.events
}

// Open validates the class credentials and transitions CLOSED → OPEN with a
// fresh session context. Opening while a session is active fails with
// ErrSessionActive; a wrong PIN fails with ErrInvalidCredentials and leaves
// the coordinator closed.
func (c *Coordinator) Open(ctx context.Context, classCode, pin string, pertemuan int) (Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		return Descriptor{}, ErrSessionActive
	}

	octx, cancel := context.WithTimeout(ctx, c.cfg.OpenTimeout)
	defer cancel()

	cls, err := c.registry.Authorize(octx, classCode, pin)
	if err != nil {
		if errors.Is(err, classes.ErrInvalidPIN) {
			return Descriptor{}, ErrInvalidCredentials
		}
		return Descriptor{}, err
	}

	if !cls.ValidMeeting(pertemuan) {
		return Descriptor{}, fmt.Errorf("%w: pertemuan %d not in 1..%d",
			ErrInvalidMeeting, pertemuan, cls.MeetingCount())
	}

	if err := c.ledger.EnsureClass(octx, classCode); err != nil {
		return Descriptor{}, fmt.Errorf("prepare ledger: %w", err)
	}

	c.desc = Descriptor{
		ID:        uuid.New().String(),
		ClassCode: classCode,
		ClassName: cls.Name,
		Pertemuan: pertemuan,
		OpenedAt:  c.now(),
	}
	c.admitted = make(map[string]struct{})
	c.admissions = nil
	c.resetStreakLocked()
	c.state = StateOpen

	c.logger.Info("session opened",
		"session_id", c.desc.ID,
		"class", classCode,
		"pertemuan", pertemuan,
	)
	return c.desc, nil
}

// Submit feeds one match result into the open session and reports what it
// did. Unknown and ambiguous matches are ignored, already-admitted students
// are suppressed, and everyone else must hold a confirming streak of
// DebounceFrames within DebounceWindow before a record is written.
func (c *Coordinator) Submit(ctx context.Context, res facematch.MatchResult) (Admission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return Admission{}, ErrSessionNotOpen
	}

	if res.None() || res.Ambiguous {
		return Admission{Outcome: OutcomeIgnored}, nil
	}

	if _, ok := c.admitted[res.NIM]; ok {
		return Admission{Outcome: OutcomeDuplicate, NIM: res.NIM, Name: res.Name}, nil
	}

	now := c.now()
	if res.NIM != c.streakNIM || now.Sub(c.streakStart) > c.cfg.DebounceWindow {
		c.streakNIM = res.NIM
		c.streakCount = 0
		c.streakStart = now
	}
	c.streakCount++

	confidence := facematch.Confidence(res.Distance)
	if c.streakCount < c.cfg.DebounceFrames {
		return Admission{
			Outcome:    OutcomePending,
			NIM:        res.NIM,
			Name:       res.Name,
			Confidence: confidence,
			Streak:     c.streakCount,
		}, nil
	}

	rec := database.AttendanceRecord{
		NIM:       res.NIM,
		Name:      res.Name,
		AbsenTime: now,
		Status:    database.StatusPending,
		Pertemuan: c.desc.Pertemuan,
	}
	inserted, err := c.ledger.Insert(ctx, c.desc.ClassCode, rec)
	if err != nil {
		// Streak survives, the next frame retries the write.
		return Admission{}, fmt.Errorf("record attendance: %w", err)
	}

	c.admitted[res.NIM] = struct{}{}
	c.resetStreakLocked()

	if !inserted {
		// A row for this (nim, pertemuan) already exists, written by an
		// earlier session of the same meeting.
		c.logger.Info("attendance already recorded",
			"session_id", c.desc.ID,
			"nim", res.NIM,
			"pertemuan", c.desc.Pertemuan,
		)
		return Admission{Outcome: OutcomeDuplicate, NIM: res.NIM, Name: res.Name}, nil
	}

	event := AdmissionEvent{
		SessionID:  c.desc.ID,
		ClassCode:  c.desc.ClassCode,
		Pertemuan:  c.desc.Pertemuan,
		NIM:        res.NIM,
		Name:       res.Name,
		Confidence: confidence,
		AdmittedAt: now,
	}
	c.admissions = append(c.admissions, event)
	c.events.send(event)

	c.logger.Info("student admitted",
		"session_id", c.desc.ID,
		"nim", res.NIM,
		"name", res.Name,
		"confidence", confidence,
	)
	return Admission{
		Outcome:    OutcomeAdmitted,
		NIM:        res.NIM,
		Name:       res.Name,
		Confidence: confidence,
		Streak:     c.streakCount,
	}, nil
}

// Close transitions OPEN → CLOSING → CLOSED and returns the session summary.
// Closing an already-closed coordinator fails with ErrSessionNotOpen.
func (c *Coordinator) Close() (Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return Summary{}, ErrSessionNotOpen
	}
	c.state = StateClosing

	nims := make([]string, 0, len(c.admissions))
	for _, adm := range c.admissions {
		nims = append(nims, adm.NIM)
	}

	sum := Summary{
		ID:        c.desc.ID,
		ClassCode: c.desc.ClassCode,
		Pertemuan: c.desc.Pertemuan,
		Count:     len(nims),
		NIMs:      nims,
		OpenedAt:  c.desc.OpenedAt,
		ClosedAt:  c.now(),
	}

	c.logger.Info("session closed",
		"session_id", sum.ID,
		"class", sum.ClassCode,
		"pertemuan", sum.Pertemuan,
		"admitted", sum.Count,
	)

	c.state = StateClosed
	c.desc = Descriptor{}
	c.admitted = nil
	c.admissions = nil
	c.resetStreakLocked()
	return sum, nil
}

// Status reports the current state for API consumers.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state}
	if c.state == StateOpen {
		desc := c.desc
		st.Session = &desc
		st.Admissions = append([]AdmissionEvent(nil), c.admissions...)
	}
	return st
}

// SessionID returns the active session id, or empty when closed.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ""
	}
	return c.desc.ID
}

func (c *Coordinator) resetStreakLocked() {
	c.streakNIM = ""
	c.streakCount = 0
	c.streakStart = time.Time{}
}
