package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/hadir-dev/hadir/internal/classes"
	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/mysql"
	"github.com/hadir-dev/hadir/internal/database/postgres"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/session"
	"github.com/hadir-dev/hadir/internal/stream"
	"github.com/hadir-dev/hadir/internal/syncer"
	"github.com/hadir-dev/hadir/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance kiosk server",
	Long: `Start the hadir kiosk server.
The server accepts camera embeddings over HTTP, matches them against
enrolled students, records admissions in the local ledger, and reconciles
pending rows with the campus attendance database in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides SERVE_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides SERVE_HOST)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session tokens (defaults to random)")
}

// applyServeFlags lets command line flags win over environment config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

// buildEnrollmentSource picks where enrolled identities come from. A
// configured database wins; otherwise a manifest snapshot on disk. A kiosk
// with neither starts with an empty index.
func buildEnrollmentSource(cfg *config.Config, logger *slog.Logger) (database.IdentitySource, func(), error) {
	if cfg.Enrollment.DatabaseURL != "" {
		pool, err := postgres.Connect(&cfg.Enrollment)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to enrollment database: %w", err)
		}
		logger.Info("enrollment source ready", "kind", "postgres")
		return postgres.NewEnrollmentRepository(pool), func() { _ = pool.Close() }, nil
	}

	if _, err := os.Stat(cfg.Enrollment.ManifestPath); err == nil {
		logger.Info("enrollment source ready", "kind", "manifest", "path", cfg.Enrollment.ManifestPath)
		return database.ManifestSource{Path: cfg.Enrollment.ManifestPath}, func() {}, nil
	}

	return nil, func() {}, nil
}

// loadIndex fills the in-memory index from the enrollment source. An empty
// source is not fatal, the kiosk can enroll students later.
func loadIndex(ctx context.Context, index *database.Index, source database.IdentitySource, logger *slog.Logger) error {
	identities, err := source.Identities(ctx)
	if err != nil {
		return fmt.Errorf("loading enrollments: %w", err)
	}
	if err := index.Load(identities); err != nil {
		if errors.Is(err, database.ErrEmptyStore) {
			logger.Warn("enrollment source holds no students, matching rejects everything until enrollment")
			return nil
		}
		return fmt.Errorf("building identity index: %w", err)
	}
	logger.Info("identity index ready",
		"students", index.Count(),
		"embeddings", index.EmbeddingCount(),
		"dim", index.Dim(),
	)
	return nil
}

// buildReconciler wires background sync when a remote DSN is configured.
// The pool dials lazily so an offline kiosk can boot and catch up later.
func buildReconciler(cfg *config.Config, ledger *sqlite.Ledger, logger *slog.Logger) (*syncer.Reconciler, func(), error) {
	syncCfg := syncer.Config{
		Interval:    cfg.Sync.Interval,
		Timeout:     cfg.Sync.Timeout,
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   cfg.Sync.BaseDelay,
	}

	if cfg.Remote.DatabaseURL == "" {
		logger.Info("remote attendance database not configured, records stay local")
		return syncer.New(ledger, nil, syncCfg, logger), func() {}, nil
	}

	pool, err := mysql.NewLazyPool(cfg.Remote.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring remote attendance database: %w", err)
	}
	return syncer.New(ledger, pool, syncCfg, logger), func() { _ = pool.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	logger := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Two kiosk processes sharing one ledger would race the session state.
	lock := flock.New(filepath.Join(cfg.DataDir, "hadir.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring kiosk lock: %w", err)
	}
	if !locked {
		return errors.New("another hadir instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

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
		logger.Warn("no enrollment source configured, matching rejects everything until enrollment")
	} else if err := loadIndex(cmd.Context(), index, source, logger); err != nil {
		return err
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

	reconciler, closeRemote, err := buildReconciler(cfg, ledger, logger)
	if err != nil {
		return err
	}
	defer closeRemote()
	reconciler.Start(context.Background())

	server := web.NewServer(cfg.Web, web.Dependencies{
		Coordinator: coordinator,
		Matcher:     matcher,
		Pump:        pump,
		Index:       index,
		Ledger:      ledger,
		Reconciler:  reconciler,
		Enrollments: source,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		pump.Stop()
		reconciler.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting hadir kiosk on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
