package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
	"github.com/ericfisherdev/railpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

// Compile-time interface satisfaction check.
var _ driven.CacheStore = (*StatsRepo)(nil)

const backend = "sqlite"

// StatsRepo is the SQLite implementation of the CacheStore port. Each entry
// spans build_stats plus its build_sections and build_excluded rows and is
// replaced as a whole in one transaction.
type StatsRepo struct {
	db      *DB
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewStatsRepo creates a new StatsRepo backed by the given DB.
func NewStatsRepo(db *DB, logger *slog.Logger, metrics *telemetry.Metrics) *StatsRepo {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StatsRepo{db: db, logger: logger, metrics: metrics}
}

// Get returns the stored stats for (milestone, build). Lookup errors and rows
// that fail validation are reported as misses.
func (r *StatsRepo) Get(ctx context.Context, milestone, build string) (*model.AggregatedStats, bool) {
	stats, err := r.get(ctx, milestone, build)
	switch {
	case err == nil:
		r.metrics.ObserveCacheLookup(backend, telemetry.CacheHit)
		return stats, true
	case errors.Is(err, sql.ErrNoRows):
		r.metrics.ObserveCacheLookup(backend, telemetry.CacheMiss)
	case errors.As(err, new(*model.CacheCorruptionError)):
		r.logger.Warn("ignoring corrupt cache entry", "error", err)
		r.metrics.ObserveCacheLookup(backend, telemetry.CacheCorrupt)
	default:
		r.logger.Warn("cache lookup failed", "milestone", milestone, "build", build, "error", err)
		r.metrics.ObserveCacheLookup(backend, telemetry.CacheMiss)
	}
	return nil, false
}

// get reads the stats row and its children inside one read transaction so a
// concurrent Put is seen either entirely or not at all.
func (r *StatsRepo) get(ctx context.Context, milestone, build string) (*model.AggregatedStats, error) {
	tx, err := r.db.Reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Read-only; nothing to keep.

	const query = `
		SELECT milestone, build_name, run_id, created_on, build_date, runs,
		       platform_family, platform_model, device_type, detail, section_status,
		       pass_count, fail_count, error_count, blocked_count, skip_count
		FROM build_stats
		WHERE milestone = ? AND build_name = ?
	`
	stats, err := scanStats(tx.QueryRowContext(ctx, query, milestone, build))
	if err != nil {
		return nil, err
	}

	key := milestone + "/" + build
	if stats.Sections, err = readSections(ctx, tx, key, milestone, build); err != nil {
		return nil, err
	}
	if stats.Excluded, err = readExcluded(ctx, tx, key, milestone, build); err != nil {
		return nil, err
	}
	return stats, nil
}

func readSections(ctx context.Context, tx *sql.Tx, key, milestone, build string) ([]model.SectionFailure, error) {
	const query = `
		SELECT section, failures FROM build_sections
		WHERE milestone = ? AND build_name = ?
		ORDER BY position
	`
	rows, err := tx.QueryContext(ctx, query, milestone, build)
	if err != nil {
		return nil, fmt.Errorf("query sections for %s: %w", key, err)
	}
	defer rows.Close()

	var sections []model.SectionFailure
	for rows.Next() {
		var sf model.SectionFailure
		if err := rows.Scan(&sf.Section, &sf.Failures); err != nil {
			return nil, &model.CacheCorruptionError{Key: key, Err: fmt.Errorf("scan section: %w", err)}
		}
		sections = append(sections, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections for %s: %w", key, err)
	}
	return sections, nil
}

func readExcluded(ctx context.Context, tx *sql.Tx, key, milestone, build string) (map[string]int, error) {
	const query = `
		SELECT status, count FROM build_excluded
		WHERE milestone = ? AND build_name = ?
	`
	rows, err := tx.QueryContext(ctx, query, milestone, build)
	if err != nil {
		return nil, fmt.Errorf("query excluded statuses for %s: %w", key, err)
	}
	defer rows.Close()

	var excluded map[string]int
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, &model.CacheCorruptionError{Key: key, Err: fmt.Errorf("scan excluded status: %w", err)}
		}
		if excluded == nil {
			excluded = make(map[string]int)
		}
		excluded[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate excluded statuses for %s: %w", key, err)
	}
	return excluded, nil
}

// Put atomically replaces the entry for (milestone, build). It deletes the
// existing rows and inserts the provided stats in a single transaction.
func (r *StatsRepo) Put(ctx context.Context, milestone, build string, stats model.AggregatedStats) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	for _, table := range []string{"build_sections", "build_excluded", "build_stats"} {
		q := `DELETE FROM ` + table + ` WHERE milestone = ? AND build_name = ?`
		if _, err := tx.ExecContext(ctx, q, milestone, build); err != nil {
			return fmt.Errorf("delete %s for %s/%s: %w", table, milestone, build, err)
		}
	}

	platform := stats.Scope.Platform
	if platform.Model == "" {
		platform = model.PlatformUnknown
	}
	device := stats.Scope.DeviceType
	if device == "" {
		device = model.DeviceUnknown
	}

	const insertStats = `
		INSERT INTO build_stats (
			milestone, build_name, run_id, created_on, build_date, runs,
			platform_family, platform_model, device_type, detail, section_status,
			pass_count, fail_count, error_count, blocked_count, skip_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insertStats,
		milestone, build, stats.Scope.RunID, formatTime(stats.CreatedOn), formatDate(stats.BuildDate), stats.Runs,
		string(platform.Family), platform.Model, string(device), string(stats.Detail), string(stats.SectionStatus),
		stats.Counts.Pass, stats.Counts.Fail, stats.Counts.Error, stats.Counts.Blocked, stats.Counts.Skip,
	); err != nil {
		return fmt.Errorf("insert stats for %s/%s: %w", milestone, build, err)
	}

	const insertSection = `
		INSERT INTO build_sections (milestone, build_name, position, section, failures)
		VALUES (?, ?, ?, ?, ?)
	`
	for i, sf := range stats.Sections {
		if _, err := tx.ExecContext(ctx, insertSection, milestone, build, i, sf.Section, sf.Failures); err != nil {
			return fmt.Errorf("insert section %q for %s/%s: %w", sf.Section, milestone, build, err)
		}
	}

	const insertExcluded = `
		INSERT INTO build_excluded (milestone, build_name, status, count)
		VALUES (?, ?, ?, ?)
	`
	for label, n := range stats.Excluded {
		if _, err := tx.ExecContext(ctx, insertExcluded, milestone, build, label, n); err != nil {
			return fmt.Errorf("insert excluded status %q for %s/%s: %w", label, milestone, build, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats for %s/%s: %w", milestone, build, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanStats reads one build_stats row. sql.ErrNoRows is returned unchanged;
// values that do not decode into the model are reported as corruption.
func scanStats(s scanner) (*model.AggregatedStats, error) {
	var (
		stats                      model.AggregatedStats
		build                      string
		createdOn, buildDate       sql.NullString
		family, platformModel, dev string
		detail, sectionStatus      string
	)

	err := s.Scan(
		&stats.Milestone, &build, &stats.Scope.RunID, &createdOn, &buildDate, &stats.Runs,
		&family, &platformModel, &dev, &detail, &sectionStatus,
		&stats.Counts.Pass, &stats.Counts.Fail, &stats.Counts.Error, &stats.Counts.Blocked, &stats.Counts.Skip,
	)
	if err != nil {
		return nil, err
	}

	key := stats.Milestone + "/" + build
	corrupt := func(err error) error { return &model.CacheCorruptionError{Key: key, Err: err} }

	stats.Scope.RunName = build
	stats.Scope.Platform = model.Platform{Family: model.PlatformFamily(family), Model: platformModel}
	stats.Scope.DeviceType = model.ParseDeviceType(dev)

	if createdOn.Valid && createdOn.String != "" {
		if stats.CreatedOn, err = parseTime(createdOn.String); err != nil {
			return nil, corrupt(fmt.Errorf("parse created_on: %w", err))
		}
	}
	if buildDate.Valid && buildDate.String != "" {
		if stats.BuildDate, err = time.Parse(time.DateOnly, buildDate.String); err != nil {
			return nil, corrupt(fmt.Errorf("parse build_date: %w", err))
		}
	}

	switch d := model.ResultShape(detail); d {
	case model.ShapeDetailed, model.ShapeSummary:
		stats.Detail = d
	default:
		return nil, corrupt(fmt.Errorf("unknown detail %q", detail))
	}
	switch ss := model.SectionStatus(sectionStatus); ss {
	case model.SectionsRanked, model.SectionsNotRequested, model.SectionsInsufficientDetail:
		stats.SectionStatus = ss
	default:
		return nil, corrupt(fmt.Errorf("unknown section_status %q", sectionStatus))
	}

	stats.Percentages = stats.Counts.Percentages()
	return &stats, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.DateOnly)
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}
