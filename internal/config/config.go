// Package config loads application configuration from environment variables
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// Cache backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	TestRailURL      string
	TestRailUsername string
	TestRailAPIKey   string
	ProjectID        int64
	Milestone        string

	BuildCount         int
	Workers            int
	MaxCandidateRuns   int
	MaxDetailedResults int
	IncludePlans       bool
	StatusPolicy       model.StatusPolicy

	CacheDir     string
	CacheBackend string
	DBPath       string

	RequestTimeout    time.Duration
	MaxAttempts       int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	MaxRateLimitWait  time.Duration
	RequestsPerSecond float64
	Burst             int

	ListenAddr string
	LogLevel   slog.Level
	LogFormat  string
}

// HasTestRailCredentials returns true when the URL, username and API key are
// all set. The HTTP API accepts per-request credentials when they are not.
func (c *Config) HasTestRailCredentials() bool {
	return c.TestRailURL != "" && c.TestRailUsername != "" && c.TestRailAPIKey != ""
}

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from RAILPANEL_* environment variables and returns
// a validated Config. TestRail credentials are optional at load time.
//
// Defaults: RAILPANEL_PROJECT_ID (9), RAILPANEL_BUILD_COUNT (5),
// RAILPANEL_WORKERS (4), RAILPANEL_CACHE_DIR (./testrail_cache),
// RAILPANEL_CACHE_BACKEND (csv), RAILPANEL_DB_PATH (<cache dir>/railpanel.db),
// RAILPANEL_REQUEST_TIMEOUT (30s), RAILPANEL_MAX_ATTEMPTS (3),
// RAILPANEL_MAX_RATE_LIMIT_WAIT (2m), RAILPANEL_REQUESTS_PER_SECOND (3),
// RAILPANEL_BURST (5), RAILPANEL_MAX_CANDIDATE_RUNS (500),
// RAILPANEL_MAX_DETAILED_RESULTS (10000), RAILPANEL_INCLUDE_PLANS (true),
// RAILPANEL_LISTEN_ADDR (127.0.0.1:8080), RAILPANEL_LOG_LEVEL (info),
// RAILPANEL_LOG_FORMAT (text).
func Load() (*Config, error) {
	cfg := &Config{
		TestRailURL:      strings.TrimSpace(os.Getenv("RAILPANEL_TESTRAIL_URL")),
		TestRailUsername: strings.TrimSpace(os.Getenv("RAILPANEL_TESTRAIL_USERNAME")),
		TestRailAPIKey:   strings.TrimSpace(os.Getenv("RAILPANEL_TESTRAIL_API_KEY")),
		Milestone:        strings.TrimSpace(os.Getenv("RAILPANEL_MILESTONE")),
		ListenAddr:       "127.0.0.1:8080",
		CacheDir:         "./testrail_cache",
		CacheBackend:     BackendCSV,
		LogFormat:        "text",
	}

	var err error
	if cfg.ProjectID, err = envInt64("RAILPANEL_PROJECT_ID", 9); err != nil {
		return nil, err
	}
	if cfg.BuildCount, err = envPositiveInt("RAILPANEL_BUILD_COUNT", 5); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envPositiveInt("RAILPANEL_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.MaxCandidateRuns, err = envPositiveInt("RAILPANEL_MAX_CANDIDATE_RUNS", 500); err != nil {
		return nil, err
	}
	if cfg.MaxDetailedResults, err = envPositiveInt("RAILPANEL_MAX_DETAILED_RESULTS", 10000); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = envPositiveInt("RAILPANEL_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.Burst, err = envPositiveInt("RAILPANEL_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.IncludePlans, err = envBool("RAILPANEL_INCLUDE_PLANS", true); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = envDuration("RAILPANEL_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryWaitMin, err = envDuration("RAILPANEL_RETRY_WAIT_MIN", time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryWaitMax, err = envDuration("RAILPANEL_RETRY_WAIT_MAX", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxRateLimitWait, err = envDuration("RAILPANEL_MAX_RATE_LIMIT_WAIT", 2*time.Minute); err != nil {
		return nil, err
	}

	cfg.RequestsPerSecond = 3
	if v, ok := os.LookupEnv("RAILPANEL_REQUESTS_PER_SECOND"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("RAILPANEL_REQUESTS_PER_SECOND has invalid value %q", v)
		}
		cfg.RequestsPerSecond = parsed
	}

	if v, ok := os.LookupEnv("RAILPANEL_CACHE_DIR"); ok && v != "" {
		cfg.CacheDir = v
	}
	if v, ok := os.LookupEnv("RAILPANEL_CACHE_BACKEND"); ok && v != "" {
		switch b := strings.ToLower(v); b {
		case BackendCSV, BackendSQLite:
			cfg.CacheBackend = b
		default:
			return nil, fmt.Errorf("RAILPANEL_CACHE_BACKEND must be %q or %q, got %q", BackendCSV, BackendSQLite, v)
		}
	}
	cfg.DBPath = filepath.Join(cfg.CacheDir, "railpanel.db")
	if v, ok := os.LookupEnv("RAILPANEL_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	cfg.StatusPolicy = model.DefaultStatusPolicy()
	if v, ok := os.LookupEnv("RAILPANEL_STATUS_MAP"); ok && v != "" {
		policy, err := model.ParseStatusOverrides(cfg.StatusPolicy, v)
		if err != nil {
			return nil, fmt.Errorf("RAILPANEL_STATUS_MAP: %w", err)
		}
		cfg.StatusPolicy = policy
	}

	if v, ok := os.LookupEnv("RAILPANEL_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("RAILPANEL_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("RAILPANEL_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}
	if v, ok := os.LookupEnv("RAILPANEL_LOG_FORMAT"); ok && v != "" {
		switch f := strings.ToLower(v); f {
		case "text", "json":
			cfg.LogFormat = f
		default:
			return nil, fmt.Errorf("RAILPANEL_LOG_FORMAT must be \"text\" or \"json\", got %q", v)
		}
	}

	return cfg, nil
}

func envInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s has invalid value %q", key, v)
	}
	return n, nil
}

func envPositiveInt(key string, def int) (int, error) {
	n, err := envInt64(key, int64(def))
	return int(n), err
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
