package application

import (
	"io"
	"log/slog"
	"sort"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// AggregateInput is everything needed to fold one run's results into stats.
type AggregateInput struct {
	Milestone string
	Run       model.Run
	Results   model.RunResults
	// SectionPaths maps section ID to display path. Results whose SectionID is
	// missing here rank under model.UnmappedSection.
	SectionPaths map[int64]string
	WithSections bool
}

// Aggregator folds detailed or summary run results into AggregatedStats using
// a status policy. It holds no per-run state and is safe for concurrent use.
type Aggregator struct {
	policy model.StatusPolicy
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. A nil policy uses the default mapping.
func NewAggregator(policy model.StatusPolicy, logger *slog.Logger) *Aggregator {
	if policy == nil {
		policy = model.DefaultStatusPolicy()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{policy: policy, logger: logger}
}

// Aggregate computes the stats for a single run.
func (a *Aggregator) Aggregate(in AggregateInput) model.AggregatedStats {
	stats := model.AggregatedStats{
		Milestone: in.Milestone,
		Scope: model.Scope{
			RunID:      in.Run.ID,
			RunName:    in.Run.Name,
			Platform:   in.Run.Platform,
			DeviceType: in.Run.DeviceType,
		},
		CreatedOn: in.Run.CreatedOn,
		Runs:      1,
		Detail:    in.Results.Shape,
	}
	if d, ok := ParseBuildDate(in.Run.Name); ok {
		stats.BuildDate = d
	}

	excluded := make(map[string]int)
	failing := make(map[string]int)

	switch in.Results.Shape {
	case model.ShapeSummary:
		for id, n := range in.Results.Summary.Counts {
			if n <= 0 {
				continue
			}
			st, ok := a.policy.Map(id)
			if !ok {
				excluded[id.Label()] += n
				continue
			}
			stats.Counts.Add(st, n)
		}
	default:
		stats.Detail = model.ShapeDetailed
		for _, r := range latestPerTest(in.Results.Results) {
			st, ok := a.policy.Map(r.StatusID)
			if !ok {
				excluded[r.StatusID.Label()]++
				continue
			}
			stats.Counts.Add(st, 1)
			if in.WithSections && st.IsFailure() {
				path, ok := in.SectionPaths[r.SectionID]
				if !ok || path == "" {
					path = model.UnmappedSection
				}
				failing[path]++
			}
		}
	}

	stats.Percentages = stats.Counts.Percentages()

	switch {
	case !in.WithSections:
		stats.SectionStatus = model.SectionsNotRequested
	case stats.Detail == model.ShapeSummary:
		stats.SectionStatus = model.SectionsInsufficientDetail
	default:
		stats.SectionStatus = model.SectionsRanked
		stats.Sections = rankSections(failing)
	}

	if len(excluded) > 0 {
		stats.Excluded = excluded
		a.logger.Info("results with non-canonical statuses excluded",
			"run_id", in.Run.ID,
			"run", in.Run.Name,
			"excluded", excluded,
		)
	}

	return stats
}

// latestPerTest keeps, for every test, the result with the newest CreatedOn
// (highest ID on a tie). Results without a test ID are kept individually.
func latestPerTest(results []model.TestResult) []model.TestResult {
	latest := make(map[int64]model.TestResult, len(results))
	for _, r := range results {
		key := r.TestID
		if key == 0 {
			key = -r.ID
		}
		cur, seen := latest[key]
		if !seen || r.CreatedOn.After(cur.CreatedOn) ||
			(r.CreatedOn.Equal(cur.CreatedOn) && r.ID > cur.ID) {
			latest[key] = r
		}
	}

	out := make([]model.TestResult, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// rankSections orders sections by failure count descending, then path ascending.
func rankSections(failing map[string]int) []model.SectionFailure {
	if len(failing) == 0 {
		return nil
	}
	ranked := make([]model.SectionFailure, 0, len(failing))
	for path, n := range failing {
		ranked = append(ranked, model.SectionFailure{Section: path, Failures: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Failures != ranked[j].Failures {
			return ranked[i].Failures > ranked[j].Failures
		}
		return ranked[i].Section < ranked[j].Section
	})
	return ranked
}

type platformKey struct {
	platform model.Platform
	device   model.DeviceType
}

// RollupByPlatform sums per-run stats into one entry per platform and device
// type, ordered by model then device type. A group containing any summary-only
// run is reported as summary detail; its section ranking covers only the
// detailed runs and is flagged insufficient_detail.
func RollupByPlatform(stats []model.AggregatedStats) []model.AggregatedStats {
	groups := make(map[platformKey]*model.AggregatedStats)
	failing := make(map[platformKey]map[string]int)

	for _, s := range stats {
		k := platformKey{platform: s.Scope.Platform, device: s.Scope.DeviceType}
		g, ok := groups[k]
		if !ok {
			g = &model.AggregatedStats{
				Milestone:     s.Milestone,
				Scope:         model.Scope{Platform: k.platform, DeviceType: k.device},
				Detail:        model.ShapeDetailed,
				SectionStatus: s.SectionStatus,
			}
			groups[k] = g
			failing[k] = make(map[string]int)
		}

		g.Runs += s.Runs
		g.Counts = g.Counts.Plus(s.Counts)
		if s.CreatedOn.After(g.CreatedOn) {
			g.CreatedOn = s.CreatedOn
		}
		if s.Detail == model.ShapeSummary {
			g.Detail = model.ShapeSummary
		}
		if s.SectionStatus == model.SectionsInsufficientDetail {
			g.SectionStatus = model.SectionsInsufficientDetail
		}
		for label, n := range s.Excluded {
			if g.Excluded == nil {
				g.Excluded = make(map[string]int)
			}
			g.Excluded[label] += n
		}
		for _, sf := range s.Sections {
			failing[k][sf.Section] += sf.Failures
		}
	}

	out := make([]model.AggregatedStats, 0, len(groups))
	for k, g := range groups {
		g.Percentages = g.Counts.Percentages()
		if g.SectionStatus != model.SectionsNotRequested {
			g.Sections = rankSections(failing[k])
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Scope, out[j].Scope
		if a.Platform.Model != b.Platform.Model {
			return a.Platform.Model < b.Platform.Model
		}
		return a.DeviceType < b.DeviceType
	})
	return out
}
