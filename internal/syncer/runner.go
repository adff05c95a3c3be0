package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/hadir-dev/hadir/internal/logging"
)

// Start launches periodic reconciliation. No-op when already running or
// when no remote is configured.
func (s *Reconciler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running || s.remote == nil {
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("background sync started", "interval", s.cfg.Interval)
}

// Stop halts periodic reconciliation and waits for an in-flight pass.
func (s *Reconciler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.logger.Info("background sync stopped")
}

func (s *Reconciler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			report, err := s.Reconcile(s.ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("sync pass incomplete",
					"synced", report.Synced,
					"conflicts", report.Conflicts,
					"failed", report.Failed,
					logging.Error(err),
				)
				continue
			}
			if report.Total() > 0 {
				s.logger.Info("sync pass finished",
					"synced", report.Synced,
					"conflicts", report.Conflicts,
					"failed", report.Failed,
				)
			}
		}
	}
}
