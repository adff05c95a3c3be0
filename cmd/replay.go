package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/session"
	"github.com/hadir-dev/hadir/internal/stream"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded frame file through a session",
	Long: `Replay captured embeddings through the full matching pipeline as if
a camera delivered them live. Opens a session, feeds every frame, then
closes and prints who was admitted. Useful for threshold tuning and for
re-running a session whose kiosk crashed mid-class.

The frame file is JSONL, one frame per line:
  {"embedding": [0.12, -0.03, ...], "captured_at": "2026-03-10T08:15:42+07:00"}

Example:
  hadir replay --class if4021 --pin 1234 --pertemuan 3 --frames session.jsonl`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("class", "", "Class code (required)")
	replayCmd.Flags().String("pin", "", "Session PIN (required)")
	replayCmd.Flags().Int("pertemuan", 0, "Meeting number (required)")
	replayCmd.Flags().String("frames", "", "JSONL frame recording (required)")
	_ = replayCmd.MarkFlagRequired("class")
	_ = replayCmd.MarkFlagRequired("pin")
	_ = replayCmd.MarkFlagRequired("pertemuan")
	_ = replayCmd.MarkFlagRequired("frames")
}

// recordedFrame is one line of a frame recording.
type recordedFrame struct {
	Embedding  []float32 `json:"embedding"`
	CapturedAt time.Time `json:"captured_at"`
}

// readFrames loads a whole JSONL recording. Frames without a timestamp get
// the current time so debounce windows still behave.
func readFrames(path string) ([]stream.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frame file: %w", err)
	}
	defer f.Close()

	var frames []stream.Frame
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec recordedFrame
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("frame file line %d: %w", line, err)
		}
		if len(rec.Embedding) == 0 {
			return nil, fmt.Errorf("frame file line %d: empty embedding", line)
		}
		if rec.CapturedAt.IsZero() {
			rec.CapturedAt = time.Now()
		}
		frames = append(frames, stream.Frame{Embedding: rec.Embedding, CapturedAt: rec.CapturedAt})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading frame file: %w", err)
	}
	if len(frames) == 0 {
		return nil, errors.New("frame file holds no frames")
	}
	return frames, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	classCode := mustGetString(cmd, "class")
	pin := mustGetString(cmd, "pin")
	pertemuan := mustGetInt(cmd, "pertemuan")

	frames, err := readFrames(mustGetString(cmd, "frames"))
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ledger, err := sqlite.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("opening attendance ledger: %w", err)
	}
	defer ledger.Close()

	registry, err := classes.Open(cfg.Classes.Path)
	if err != nil {
		return fmt.Errorf("opening class registry: %w", err)
	}

	metric, err := database.ParseMetric(cfg.Matching.Metric)
	if err != nil {
		return err
	}
	index := database.NewIndex(metric)

	source, closeSource, err := buildEnrollmentSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()
	if source == nil {
		return errors.New("no enrollment source configured, enroll students before replaying")
	}
	if err := loadIndex(cmd.Context(), index, source, logger); err != nil {
		return err
	}
	if index.Count() == 0 {
		return errors.New("no students enrolled, every frame would be rejected")
	}

	matcher := facematch.NewMatcher(index, cfg.Matching.RejectThreshold, cfg.Matching.AmbiguityMargin)
	coordinator := session.New(registry, ledger, session.Config{
		DebounceFrames: cfg.Session.DebounceFrames,
		DebounceWindow: cfg.Session.DebounceWindow,
		OpenTimeout:    cfg.Session.OpenTimeout,
	}, logger)

	pump := stream.NewPump(matcher, coordinator, stream.DefaultBuffer, logger)
	if err := pump.Start(context.Background()); err != nil {
		return fmt.Errorf("starting frame pump: %w", err)
	}
	defer pump.Stop()

	desc, err := coordinator.Open(cmd.Context(), classCode, pin, pertemuan)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	fmt.Printf("Replaying %d frames into %s pertemuan %d\n", len(frames), desc.ClassCode, desc.Pertemuan)

	bar := progressbar.NewOptions(len(frames),
		progressbar.OptionSetDescription("Replaying"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	ctx := cmd.Context()
	for _, frame := range frames {
		// A live camera drops frames when the pump is full. A replay
		// retries instead so the recording lands whole.
		for !pump.Offer(frame) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
		bar.Add(1)
	}

	drainCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := pump.Drain(drainCtx); err != nil {
		return fmt.Errorf("draining frame pump: %w", err)
	}

	summary, err := coordinator.Close()
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	fmt.Printf("\nAdmitted %d students\n", summary.Count)
	for _, nim := range summary.NIMs {
		fmt.Printf("  %s\n", nim)
	}
	return nil
}
