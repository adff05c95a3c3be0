// Package syncer reconciles locally captured attendance with the campus
// store. Pending rows are pushed remotely and flipped to sukses only after
// a confirmed write; rows the remote already knows are merged without one.
package syncer

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/logging"
)

// ErrRemoteUnavailable marks a sync attempted without a configured remote.
var ErrRemoteUnavailable = errors.New("remote attendance store not configured")

// ledger is the local side of reconciliation.
type ledger interface {
	Classes(ctx context.Context) ([]string, error)
	Pending(ctx context.Context, classCode string) ([]database.AttendanceRecord, error)
	MarkSukses(ctx context.Context, classCode string, id int64) error
}

// remote is the campus store. Nil disables sync.
type remote interface {
	EnsureTable(ctx context.Context, classCode string) error
	FetchStatus(ctx context.Context, classCode, nim string, pertemuan int) (database.Status, bool, error)
	Upsert(ctx context.Context, classCode string, rec database.AttendanceRecord) error
}

// Config holds the reconciliation tuning knobs.
type Config struct {
	// Interval between background passes.
	Interval time.Duration
	// Timeout bounds one whole pass.
	Timeout time.Duration
	// MaxAttempts per remote call, including the first.
	MaxAttempts int
	// BaseDelay is the first fibonacci backoff step.
	BaseDelay time.Duration
}

// Report counts the outcomes of one reconciliation pass. Partial success is
// a normal outcome, not an error.
type Report struct {
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
}

func (r *Report) add(other Report) {
	r.Synced += other.Synced
	r.Failed += other.Failed
	r.Conflicts += other.Conflicts
}

// Total returns the number of records a pass touched.
func (r Report) Total() int {
	return r.Synced + r.Failed + r.Conflicts
}

// Reconciler pushes pending ledger rows to the remote store. Safe to run
// while a session is open: it only reads already-persisted records.
type Reconciler struct {
	ledger ledger
	remote remote
	logger *slog.Logger
	cfg    Config

	// passMu serializes passes so a manual sync and the ticker never
	// interleave on the same rows.
	passMu sync.Mutex

	mu         sync.Mutex
	lastRun    time.Time
	lastReport Report

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a reconciler. A nil remote disables pushing; forced syncs then
// report every pending row as failed.
func New(led ledger, rem remote, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Reconciler{
		ledger: led,
		remote: rem,
		logger: logger,
		cfg:    cfg,
	}
}

// Enabled reports whether a remote store is configured.
func (s *Reconciler) Enabled() bool {
	return s.remote != nil
}

// LastOutcome returns when the last pass ran and what it did.
func (s *Reconciler) LastOutcome() (time.Time, Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastReport
}

// Reconcile runs one pass over every class in the ledger.
func (s *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	classCodes, err := s.ledger.Classes(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list ledger classes: %w", err)
	}

	var (
		report   Report
		passErr  error
		disabled bool
	)
	for _, classCode := range classCodes {
		rep, err := s.reconcileClass(ctx, classCode)
		report.add(rep)
		if errors.Is(err, ErrRemoteUnavailable) {
			disabled = true
			continue
		}
		if err != nil && passErr == nil {
			passErr = err
		}
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastReport = report
	s.mu.Unlock()

	if disabled {
		return report, ErrRemoteUnavailable
	}
	return report, passErr
}

// ReconcileClass runs one pass over a single class's pending rows.
func (s *Reconciler) ReconcileClass(ctx context.Context, classCode string) (Report, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	report, err := s.reconcileClass(ctx, classCode)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastReport = report
	s.mu.Unlock()

	return report, err
}

// reconcileClass pushes one class's pending rows.
func (s *Reconciler) reconcileClass(ctx context.Context, classCode string) (Report, error) {
	var report Report

	pending, err := s.ledger.Pending(ctx, classCode)
	if err != nil {
		return report, fmt.Errorf("read pending rows for %s: %w", classCode, err)
	}
	if len(pending) == 0 {
		return report, nil
	}

	if s.remote == nil {
		report.Failed = len(pending)
		return report, ErrRemoteUnavailable
	}

	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.remote.EnsureTable(ctx, classCode)
	}); err != nil {
		s.logger.Warn("remote table unavailable",
			"class", classCode,
			"pending", len(pending),
			logging.Error(err),
		)
		report.Failed = len(pending)
		return report, nil
	}

	for _, rec := range pending {
		switch s.reconcileRecord(ctx, classCode, rec) {
		case outcomeSynced:
			report.Synced++
		case outcomeConflict:
			report.Conflicts++
		case outcomeFailed:
			report.Failed++
		}
	}

	s.logger.Info("class reconciled",
		"class", classCode,
		"synced", report.Synced,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
	)
	return report, nil
}

type recordOutcome int

const (
	outcomeSynced recordOutcome = iota
	outcomeConflict
	outcomeFailed
)

// reconcileRecord settles one pending row. Atomic at record granularity: a
// failure leaves the row pending for the next pass.
func (s *Reconciler) reconcileRecord(ctx context.Context, classCode string, rec database.AttendanceRecord) recordOutcome {
	var (
		status database.Status
		found  bool
	)
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		status, found, err = s.remote.FetchStatus(ctx, classCode, rec.NIM, rec.Pertemuan)
		return err
	})
	if err != nil {
		s.logger.Warn("remote lookup failed",
			"class", classCode,
			"nim", rec.NIM,
			"pertemuan", rec.Pertemuan,
			logging.Error(err),
		)
		return outcomeFailed
	}

	if found && status == database.StatusSukses {
		// Already synced from elsewhere: merge locally, no remote write.
		if err := s.ledger.MarkSukses(ctx, classCode, rec.ID); err != nil {
			s.logger.Error("failed to merge conflict locally",
				"class", classCode,
				"nim", rec.NIM,
				logging.Error(err),
			)
			return outcomeFailed
		}
		return outcomeConflict
	}

	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.remote.Upsert(ctx, classCode, rec)
	}); err != nil {
		s.logger.Warn("remote upsert failed",
			"class", classCode,
			"nim", rec.NIM,
			"pertemuan", rec.Pertemuan,
			logging.Error(err),
		)
		return outcomeFailed
	}

	if err := s.ledger.MarkSukses(ctx, classCode, rec.ID); err != nil {
		// The remote write landed; the local flip retries next pass and
		// resolves as a conflict then.
		s.logger.Error("failed to mark record sukses",
			"class", classCode,
			"nim", rec.NIM,
			logging.Error(err),
		)
		return outcomeFailed
	}
	return outcomeSynced
}

func (s *Reconciler) withRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewFibonacci(s.cfg.BaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports whether a remote error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
