package csvcache

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

var errMissingSection = errors.New("missing section")

// decode parses a cache file and returns the stats along with the milestone
// and build names recorded in it.
func decode(data []byte) (*model.AggregatedStats, string, string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, "", "", fmt.Errorf("parsing csv: %w", err)
	}

	sections := make(map[string][][]string)
	var current string
	expectHeader := false
	for i, rec := range records {
		if len(rec) == 1 {
			if _, ok := headers[rec[0]]; !ok {
				return nil, "", "", fmt.Errorf("line %d: unknown section %q", i+1, rec[0])
			}
			if _, dup := sections[rec[0]]; dup {
				return nil, "", "", fmt.Errorf("line %d: duplicate section %q", i+1, rec[0])
			}
			current = rec[0]
			sections[current] = [][]string{}
			expectHeader = true
			continue
		}
		if current == "" {
			return nil, "", "", fmt.Errorf("line %d: data before first section", i+1)
		}
		if expectHeader {
			if !slices.Equal(rec, headers[current]) {
				return nil, "", "", fmt.Errorf("line %d: unexpected %s header %v", i+1, current, rec)
			}
			expectHeader = false
			continue
		}
		if len(rec) != len(headers[current]) {
			return nil, "", "", fmt.Errorf("line %d: %s row has %d fields, want %d", i+1, current, len(rec), len(headers[current]))
		}
		sections[current] = append(sections[current], rec)
	}

	for _, name := range []string{markSummary, markPlatforms, markSections, markExcluded} {
		if _, ok := sections[name]; !ok {
			return nil, "", "", fmt.Errorf("%w %s", errMissingSection, name)
		}
	}

	st, milestone, build, err := decodeSummary(sections[markSummary])
	if err != nil {
		return nil, "", "", err
	}
	if err := decodePlatform(sections[markPlatforms], st); err != nil {
		return nil, "", "", err
	}

	for _, row := range sections[markSections] {
		n, err := nonNegative(row[1])
		if err != nil {
			return nil, "", "", fmt.Errorf("section %q: %w", row[0], err)
		}
		st.Sections = append(st.Sections, model.SectionFailure{Section: row[0], Failures: n})
	}
	for _, row := range sections[markExcluded] {
		n, err := nonNegative(row[1])
		if err != nil {
			return nil, "", "", fmt.Errorf("excluded %q: %w", row[0], err)
		}
		if st.Excluded == nil {
			st.Excluded = make(map[string]int)
		}
		st.Excluded[row[0]] = n
	}

	st.Percentages = st.Counts.Percentages()
	return st, milestone, build, nil
}

func decodeSummary(rows [][]string) (*model.AggregatedStats, string, string, error) {
	kv := make(map[string]string, len(rows))
	for _, row := range rows {
		kv[row[0]] = row[1]
	}

	if v := kv["schema"]; v != schemaVersion {
		return nil, "", "", fmt.Errorf("unsupported schema %q", v)
	}
	for _, key := range []string{"milestone", "build", "run_id", "runs", "detail", "section_status"} {
		if _, ok := kv[key]; !ok {
			return nil, "", "", fmt.Errorf("summary is missing %q", key)
		}
	}

	st := &model.AggregatedStats{Milestone: kv["milestone"]}
	st.Scope.RunName = kv["build"]

	var err error
	if st.Scope.RunID, err = strconv.ParseInt(kv["run_id"], 10, 64); err != nil {
		return nil, "", "", fmt.Errorf("run_id: %w", err)
	}
	if st.Runs, err = nonNegative(kv["runs"]); err != nil {
		return nil, "", "", fmt.Errorf("runs: %w", err)
	}
	if v := kv["created_on"]; v != "" {
		if st.CreatedOn, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, "", "", fmt.Errorf("created_on: %w", err)
		}
		st.CreatedOn = st.CreatedOn.UTC()
	}
	if v := kv["build_date"]; v != "" {
		if st.BuildDate, err = time.Parse(dateLayout, v); err != nil {
			return nil, "", "", fmt.Errorf("build_date: %w", err)
		}
	}

	switch d := model.ResultShape(kv["detail"]); d {
	case model.ShapeDetailed, model.ShapeSummary:
		st.Detail = d
	default:
		return nil, "", "", fmt.Errorf("unknown detail %q", d)
	}
	switch s := model.SectionStatus(kv["section_status"]); s {
	case model.SectionsRanked, model.SectionsNotRequested, model.SectionsInsufficientDetail:
		st.SectionStatus = s
	default:
		return nil, "", "", fmt.Errorf("unknown section_status %q", s)
	}

	for _, status := range model.CanonicalStatuses {
		v, ok := kv[string(status)]
		if !ok {
			return nil, "", "", fmt.Errorf("summary is missing %q", status)
		}
		n, err := nonNegative(v)
		if err != nil {
			return nil, "", "", fmt.Errorf("%s: %w", status, err)
		}
		st.Counts.Add(status, n)
	}

	return st, kv["milestone"], kv["build"], nil
}

// decodePlatform reads the single PLATFORMS row and checks that its counts
// agree with the summary.
func decodePlatform(rows [][]string, st *model.AggregatedStats) error {
	if len(rows) != 1 {
		return fmt.Errorf("want 1 platform row, got %d", len(rows))
	}
	row := rows[0]

	family := model.PlatformFamily(row[0])
	switch family {
	case model.FamilyMS, model.FamilyCatalyst, model.FamilyUnknown:
	default:
		return fmt.Errorf("unknown platform family %q", row[0])
	}
	st.Scope.Platform = model.Platform{Family: family, Model: row[1]}
	st.Scope.DeviceType = model.ParseDeviceType(row[2])

	var counts model.StatusCounts
	for i, status := range model.CanonicalStatuses {
		n, err := nonNegative(row[3+i])
		if err != nil {
			return fmt.Errorf("platform %s: %w", status, err)
		}
		counts.Add(status, n)
	}
	if counts != st.Counts {
		return fmt.Errorf("platform counts %+v disagree with summary %+v", counts, st.Counts)
	}
	return nil
}

func nonNegative(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
