package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	DataDir    string
	Matching   MatchingConfig
	Session    SessionConfig
	Ledger     LedgerConfig
	Enrollment EnrollmentConfig
	Remote     RemoteConfig
	Sync       SyncConfig
	Web        WebConfig
	Classes    ClassesConfig
	Log        LogConfig
}

type MatchingConfig struct {
	Metric          string  // cosine or euclidean
	RejectThreshold float64 // max distance still accepted as a match
	AmbiguityMargin float64 // min gap to the second-best identity
	EmbeddingDim    int
}

type SessionConfig struct {
	DebounceFrames int           // consecutive confirming frames before admission
	DebounceWindow time.Duration // max age of the oldest counted frame
	OpenTimeout    time.Duration // bound on PIN validation
}

type LedgerConfig struct {
	Path      string // SQLite database file
	ExportDir string // CSV export directory
}

type EnrollmentConfig struct {
	DatabaseURL  string // PostgreSQL connection URL; empty means manifest-only deployment
	ManifestPath string // JSONL snapshot used when no database is configured
	MaxOpenConns int
	MaxIdleConns int
}

type RemoteConfig struct {
	DatabaseURL string // MySQL DSN of the campus attendance store (e.g., user:pass@tcp(host:3306)/attendance); empty disables sync
}

type SyncConfig struct {
	Interval    time.Duration // background reconciliation period
	Timeout     time.Duration // bound on one reconciliation pass
	MaxAttempts int           // remote attempts per record before giving up for this pass
	BaseDelay   time.Duration // first backoff step
}

type WebConfig struct {
	Host          string
	Port          int
	SessionSecret string // HMAC key for session tokens; generated per process when empty
	CORSOrigin    string
}

type ClassesConfig struct {
	Path string // YAML class registry
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console, or auto
}

// defaults mirrors defaults.yaml. Durations are millisecond integers so the
// file stays plain YAML.
type defaults struct {
	Matching struct {
		Metric          string  `yaml:"metric"`
		RejectThreshold float64 `yaml:"reject_threshold"`
		AmbiguityMargin float64 `yaml:"ambiguity_margin"`
		EmbeddingDim    int     `yaml:"embedding_dim"`
	} `yaml:"matching"`
	Session struct {
		DebounceFrames   int `yaml:"debounce_frames"`
		DebounceWindowMs int `yaml:"debounce_window_ms"`
		OpenTimeoutMs    int `yaml:"open_timeout_ms"`
	} `yaml:"session"`
	Sync struct {
		IntervalMs  int `yaml:"interval_ms"`
		TimeoutMs   int `yaml:"timeout_ms"`
		MaxAttempts int `yaml:"max_attempts"`
		BaseDelayMs int `yaml:"base_delay_ms"`
	} `yaml:"sync"`
}

// envStr reads an environment variable with a default.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable in time.ParseDuration syntax.
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// Embedded file, cannot fail in a correct build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	dataDir := envStr("DATA_DIR", "data")

	return &Config{
		DataDir: dataDir,
		Matching: MatchingConfig{
			Metric:          envStr("MATCH_METRIC", def.Matching.Metric),
			RejectThreshold: envFloat("MATCH_REJECT_THRESHOLD", def.Matching.RejectThreshold),
			AmbiguityMargin: envFloat("MATCH_AMBIGUITY_MARGIN", def.Matching.AmbiguityMargin),
			EmbeddingDim:    envInt("MATCH_EMBEDDING_DIM", def.Matching.EmbeddingDim),
		},
		Session: SessionConfig{
			DebounceFrames: envInt("SESSION_DEBOUNCE_FRAMES", def.Session.DebounceFrames),
			DebounceWindow: envDuration("SESSION_DEBOUNCE_WINDOW", time.Duration(def.Session.DebounceWindowMs)*time.Millisecond),
			OpenTimeout:    envDuration("SESSION_OPEN_TIMEOUT", time.Duration(def.Session.OpenTimeoutMs)*time.Millisecond),
		},
		Ledger: LedgerConfig{
			Path:      envStr("LEDGER_PATH", filepath.Join(dataDir, "attendance.db")),
			ExportDir: envStr("EXPORT_DIR", "exports"),
		},
		Enrollment: EnrollmentConfig{
			DatabaseURL:  os.Getenv("DATABASE_URL"),
			ManifestPath: envStr("ENROLLMENT_MANIFEST", filepath.Join(dataDir, "enrollments.jsonl")),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Remote: RemoteConfig{
			DatabaseURL: os.Getenv("REMOTE_DATABASE_URL"),
		},
		Sync: SyncConfig{
			Interval:    envDuration("SYNC_INTERVAL", time.Duration(def.Sync.IntervalMs)*time.Millisecond),
			Timeout:     envDuration("SYNC_TIMEOUT", time.Duration(def.Sync.TimeoutMs)*time.Millisecond),
			MaxAttempts: envInt("SYNC_MAX_ATTEMPTS", def.Sync.MaxAttempts),
			BaseDelay:   envDuration("SYNC_BASE_DELAY", time.Duration(def.Sync.BaseDelayMs)*time.Millisecond),
		},
		Web: WebConfig{
			Host:          envStr("SERVE_HOST", "127.0.0.1"),
			Port:          envInt("SERVE_PORT", 8420),
			SessionSecret: os.Getenv("WEB_SESSION_SECRET"),
			CORSOrigin:    envStr("CORS_ORIGIN", "*"),
		},
		Classes: ClassesConfig{
			Path: envStr("CLASSES_PATH", filepath.Join(dataDir, "classes.yaml")),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "auto"),
		},
	}
}
