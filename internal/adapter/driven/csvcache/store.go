// Package csvcache implements the CacheStore port as one flat CSV file per
// (milestone, build) on an afero filesystem.
package csvcache

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
	"github.com/ericfisherdev/railpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

// Compile-time interface satisfaction check.
var _ driven.CacheStore = (*Store)(nil)

const (
	schemaVersion = "1"
	backend       = "csv"
	dateLayout    = "2006-01-02"
)

// Section markers and their header rows.
const (
	markSummary   = "SUMMARY"
	markPlatforms = "PLATFORMS"
	markSections  = "SECTIONS"
	markExcluded  = "EXCLUDED"
)

var headers = map[string][]string{
	markSummary:   {"metric", "value"},
	markPlatforms: {"platform_family", "platform_model", "device_type", "pass", "fail", "error", "blocked", "skip"},
	markSections:  {"section", "failures"},
	markExcluded:  {"status", "count"},
}

// Store keeps one CSV file per build under dir/<milestone>/<build>.csv.
// Invalidation is deleting files or the whole directory out of band.
type Store struct {
	fs      afero.Fs
	dir     string
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New creates a Store rooted at dir on fsys.
func New(fsys afero.Fs, dir string, logger *slog.Logger, metrics *telemetry.Metrics) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{fs: fsys, dir: dir, logger: logger, metrics: metrics}
}

// Path returns the file that holds the entry for (milestone, build).
func (s *Store) Path(milestone, build string) string {
	return filepath.Join(s.dir, Sanitize(milestone), Sanitize(build)+".csv")
}

// Sanitize replaces every rune outside [A-Za-z0-9_-] with an underscore.
func Sanitize(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Get returns the cached stats for (milestone, build). Missing, unreadable,
// corrupt and colliding entries are all misses.
func (s *Store) Get(ctx context.Context, milestone, build string) (*model.AggregatedStats, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	path := s.Path(milestone, build)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache read failed", "path", path, "error", err)
		}
		s.metrics.ObserveCacheLookup(backend, telemetry.CacheMiss)
		return nil, false
	}

	stats, storedMilestone, storedBuild, err := decode(data)
	if err != nil {
		cerr := &model.CacheCorruptionError{Key: path, Err: err}
		s.logger.Warn("ignoring corrupt cache entry", "error", cerr)
		s.metrics.ObserveCacheLookup(backend, telemetry.CacheCorrupt)
		return nil, false
	}
	if storedBuild != build || storedMilestone != milestone {
		s.logger.Debug("cache key collision", "path", path, "stored_build", storedBuild, "build", build)
		s.metrics.ObserveCacheLookup(backend, telemetry.CacheMiss)
		return nil, false
	}

	s.metrics.ObserveCacheLookup(backend, telemetry.CacheHit)
	return stats, true
}

// Put writes the entry to a temp file in the target directory and renames it
// into place, so readers never observe a partial file.
func (s *Store) Put(ctx context.Context, milestone, build string, stats model.AggregatedStats) (ret error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(milestone, build)
	dir := filepath.Dir(path)

	data, err := encode(milestone, build, stats)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", path, err)
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmp := tmpFile.Name()
	defer func() {
		// Nothing to clean up once the rename succeeded.
		if _, err := s.fs.Stat(tmp); errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err := s.fs.Remove(tmp); err != nil && ret == nil {
			ret = fmt.Errorf("removing temp file %s: %w", tmp, err)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing temp file %s: %w", tmp, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}

	s.logger.Debug("cache entry written", "path", path)
	return nil
}

func encode(milestone, build string, st model.AggregatedStats) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	var createdOn, buildDate string
	if !st.CreatedOn.IsZero() {
		createdOn = st.CreatedOn.UTC().Format(time.RFC3339)
	}
	if !st.BuildDate.IsZero() {
		buildDate = st.BuildDate.UTC().Format(dateLayout)
	}

	rows := [][]string{
		{markSummary},
		headers[markSummary],
		{"schema", schemaVersion},
		{"milestone", milestone},
		{"build", build},
		{"run_id", strconv.FormatInt(st.Scope.RunID, 10)},
		{"created_on", createdOn},
		{"build_date", buildDate},
		{"runs", strconv.Itoa(st.Runs)},
		{"detail", string(st.Detail)},
		{"section_status", string(st.SectionStatus)},
	}
	for _, status := range model.CanonicalStatuses {
		rows = append(rows, []string{string(status), strconv.Itoa(st.Counts.Get(status))})
	}

	platform := st.Scope.Platform
	if platform.Model == "" {
		platform = model.PlatformUnknown
	}
	device := st.Scope.DeviceType
	if device == "" {
		device = model.DeviceUnknown
	}
	rows = append(rows,
		[]string{markPlatforms},
		headers[markPlatforms],
		[]string{
			string(platform.Family), platform.Model, string(device),
			strconv.Itoa(st.Counts.Pass), strconv.Itoa(st.Counts.Fail), strconv.Itoa(st.Counts.Error),
			strconv.Itoa(st.Counts.Blocked), strconv.Itoa(st.Counts.Skip),
		},
		[]string{markSections},
		headers[markSections],
	)
	for _, sf := range st.Sections {
		rows = append(rows, []string{sf.Section, strconv.Itoa(sf.Failures)})
	}

	rows = append(rows, []string{markExcluded}, headers[markExcluded])
	for _, label := range sortedKeys(st.Excluded) {
		rows = append(rows, []string{label, strconv.Itoa(st.Excluded[label])})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
