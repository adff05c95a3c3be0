// Package stream decouples frame producers from the attendance session with
// a bounded queue. Capture never blocks on a slow matcher; frames beyond the
// buffer are dropped and counted.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/session"
)

// DefaultBuffer is the queue depth used when the caller does not pick one.
const DefaultBuffer = 64

// Frame is one embedding delivered by the capture pipeline.
type Frame struct {
	Embedding  []float32
	CapturedAt time.Time
}

type matcher interface {
	Match(query []float32) (facematch.MatchResult, error)
}

type sink interface {
	Submit(ctx context.Context, res facematch.MatchResult) (session.Admission, error)
}

// Pump matches queued frames and feeds the results into the session.
type Pump struct {
	matcher matcher
	sink    sink
	logger  *slog.Logger
	frames  chan Frame

	offered   atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPump creates a stopped pump with the given queue depth.
func NewPump(m matcher, s sink, buffer int, logger *slog.Logger) *Pump {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pump{
		matcher: m,
		sink:    s,
		logger:  logger,
		frames:  make(chan Frame, buffer),
	}
}

// Offer enqueues a frame without blocking. Returns false when the queue is
// full and the frame was dropped.
func (p *Pump) Offer(frame Frame) bool {
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	select {
	case p.frames <- frame:
		p.offered.Add(1)
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped reports how many frames were discarded under backpressure.
func (p *Pump) Dropped() int64 {
	return p.dropped.Load()
}

// Start launches the consumer loop.
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("pump already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.ctx = runCtx
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop()
	return nil
}

// Stop cancels the consumer loop and waits for it to exit. Frames still
// queued are abandoned.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Drain blocks until every offered frame has been matched and submitted, or
// the context ends. Used by replay to finish a recording before closing.
func (p *Pump) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.processed.Load() >= p.offered.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pump) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case frame := <-p.frames:
			p.handle(frame)
			p.processed.Add(1)
		}
	}
}

func (p *Pump) handle(frame Frame) {
	res, err := p.matcher.Match(frame.Embedding)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrEmptyStore):
		// Nothing enrolled yet. Boot already warned once, keep the loop quiet.
		p.logger.Debug("frame dropped, no enrollments")
		return
	default:
		p.logger.Warn("match failed", logging.Error(err))
		return
	}

	_, err = p.sink.Submit(p.ctx, res)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotOpen):
		// Frames between sessions are expected, not errors.
		p.logger.Debug("frame outside session", "nim", res.NIM)
	default:
		p.logger.Error("submit failed", logging.Error(err))
	}
}
