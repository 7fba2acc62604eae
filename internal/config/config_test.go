package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// allConfigKeys lists every RAILPANEL_ env var that Load() reads.
var allConfigKeys = []string{
	"RAILPANEL_TESTRAIL_URL",
	"RAILPANEL_TESTRAIL_USERNAME",
	"RAILPANEL_TESTRAIL_API_KEY",
	"RAILPANEL_PROJECT_ID",
	"RAILPANEL_MILESTONE",
	"RAILPANEL_BUILD_COUNT",
	"RAILPANEL_WORKERS",
	"RAILPANEL_MAX_CANDIDATE_RUNS",
	"RAILPANEL_MAX_DETAILED_RESULTS",
	"RAILPANEL_INCLUDE_PLANS",
	"RAILPANEL_STATUS_MAP",
	"RAILPANEL_CACHE_DIR",
	"RAILPANEL_CACHE_BACKEND",
	"RAILPANEL_DB_PATH",
	"RAILPANEL_REQUEST_TIMEOUT",
	"RAILPANEL_MAX_ATTEMPTS",
	"RAILPANEL_RETRY_WAIT_MIN",
	"RAILPANEL_RETRY_WAIT_MAX",
	"RAILPANEL_MAX_RATE_LIMIT_WAIT",
	"RAILPANEL_REQUESTS_PER_SECOND",
	"RAILPANEL_BURST",
	"RAILPANEL_LISTEN_ADDR",
	"RAILPANEL_LOG_LEVEL",
	"RAILPANEL_LOG_FORMAT",
}

// isolateConfigEnv saves and unsets all RAILPANEL_ env vars so tests don't
// inherit values from the host environment. t.Cleanup restores original
// values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("RAILPANEL_TESTRAIL_URL", "https://testrail.example.com")
	t.Setenv("RAILPANEL_TESTRAIL_USERNAME", "qa@example.com")
	t.Setenv("RAILPANEL_TESTRAIL_API_KEY", "secret-key")
	t.Setenv("RAILPANEL_PROJECT_ID", "12")
	t.Setenv("RAILPANEL_BUILD_COUNT", "3")
	t.Setenv("RAILPANEL_WORKERS", "8")
	t.Setenv("RAILPANEL_REQUEST_TIMEOUT", "10s")
	t.Setenv("RAILPANEL_MAX_RATE_LIMIT_WAIT", "45s")
	t.Setenv("RAILPANEL_REQUESTS_PER_SECOND", "1.5")
	t.Setenv("RAILPANEL_INCLUDE_PLANS", "false")
	t.Setenv("RAILPANEL_CACHE_BACKEND", "SQLite")
	t.Setenv("RAILPANEL_DB_PATH", "/tmp/railpanel-test.db")
	t.Setenv("RAILPANEL_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("RAILPANEL_LOG_LEVEL", "debug")
	t.Setenv("RAILPANEL_LOG_FORMAT", "json")

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.HasTestRailCredentials())
	assert.Equal(t, int64(12), cfg.ProjectID)
	assert.Equal(t, 3, cfg.BuildCount)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 45*time.Second, cfg.MaxRateLimitWait)
	assert.InDelta(t, 1.5, cfg.RequestsPerSecond, 0.001)
	assert.False(t, cfg.IncludePlans)
	assert.Equal(t, BackendSQLite, cfg.CacheBackend)
	assert.Equal(t, "/tmp/railpanel-test.db", cfg.DBPath)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.HasTestRailCredentials())
	assert.Equal(t, int64(9), cfg.ProjectID)
	assert.Equal(t, 5, cfg.BuildCount)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 500, cfg.MaxCandidateRuns)
	assert.Equal(t, 10000, cfg.MaxDetailedResults)
	assert.True(t, cfg.IncludePlans)
	assert.Equal(t, "./testrail_cache", cfg.CacheDir)
	assert.Equal(t, BackendCSV, cfg.CacheBackend)
	assert.Equal(t, filepath.Join("./testrail_cache", "railpanel.db"), cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.MaxRateLimitWait)
	assert.InDelta(t, 3.0, cfg.RequestsPerSecond, 0.001)
	assert.Equal(t, 5, cfg.Burst)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, model.DefaultStatusPolicy(), cfg.StatusPolicy)
}

func TestLoad_StatusMap(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("RAILPANEL_STATUS_MAP", "4=fail, 8=error, 3=exclude")

	cfg, err := Load()

	require.NoError(t, err)
	st, ok := cfg.StatusPolicy.Map(model.StatusIDRetest)
	require.True(t, ok)
	assert.Equal(t, model.StatusFail, st)
	st, ok = cfg.StatusPolicy.Map(model.StatusID(8))
	require.True(t, ok)
	assert.Equal(t, model.StatusError, st)
	_, ok = cfg.StatusPolicy.Map(model.StatusIDUntested)
	assert.False(t, ok)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"RAILPANEL_PROJECT_ID", "abc", "RAILPANEL_PROJECT_ID"},
		{"RAILPANEL_BUILD_COUNT", "0", "RAILPANEL_BUILD_COUNT"},
		{"RAILPANEL_WORKERS", "-2", "RAILPANEL_WORKERS"},
		{"RAILPANEL_REQUEST_TIMEOUT", "soon", "invalid duration"},
		{"RAILPANEL_MAX_RATE_LIMIT_WAIT", "-1s", "must be positive"},
		{"RAILPANEL_REQUESTS_PER_SECOND", "fast", "RAILPANEL_REQUESTS_PER_SECOND"},
		{"RAILPANEL_INCLUDE_PLANS", "maybe", "invalid boolean"},
		{"RAILPANEL_CACHE_BACKEND", "redis", "RAILPANEL_CACHE_BACKEND"},
		{"RAILPANEL_STATUS_MAP", "4=flaky", "unknown status"},
		{"RAILPANEL_LOG_LEVEL", "loud", "invalid level"},
		{"RAILPANEL_LOG_FORMAT", "xml", "RAILPANEL_LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RAILPANEL_PROJECT_ID=42\nRAILPANEL_BUILD_COUNT=2\n"), 0o600))
	t.Setenv("RAILPANEL_BUILD_COUNT", "7")

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.ProjectID)
	assert.Equal(t, 7, cfg.BuildCount, "existing environment wins over .env")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadDotEnv(""))
}
