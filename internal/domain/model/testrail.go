package model

import "time"

// Milestone identifies a release grouping in TestRail. Children are the
// per-build sub-milestones nested under a release milestone.
type Milestone struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	ProjectID   int64       `json:"project_id"`
	ParentID    int64       `json:"parent_id,omitempty"`
	IsCompleted bool        `json:"is_completed"`
	Children    []Milestone `json:"children,omitempty"`
}

// IDs returns the milestone's own ID followed by the IDs of its children.
func (m Milestone) IDs() []int64 {
	ids := make([]int64, 0, 1+len(m.Children))
	ids = append(ids, m.ID)
	for _, c := range m.Children {
		ids = append(ids, c.ID)
	}
	return ids
}

// Run is one executed test-suite instance. railpanel treats each run as a build.
type Run struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	SuiteID       int64     `json:"suite_id,omitempty"`
	PlanID        int64     `json:"plan_id,omitempty"`
	MilestoneID   int64     `json:"milestone_id,omitempty"`
	MilestoneName string    `json:"milestone_name,omitempty"` // Set when the run hangs off a build sub-milestone.
	CreatedOn     time.Time `json:"created_on"`
	IsCompleted   bool      `json:"is_completed"`
	Summary       Summary   `json:"-"`

	// Derived from Name; not authoritative upstream data.
	Platform   Platform   `json:"platform"`
	DeviceType DeviceType `json:"device_type"`
}

// TestResult is one recorded outcome for a test within a run.
type TestResult struct {
	ID        int64
	TestID    int64
	StatusID  StatusID
	CreatedOn time.Time
	SectionID int64 // Zero when unresolved.
}

// Summary holds upstream pre-aggregated totals for a run, keyed by status ID.
type Summary struct {
	Counts map[StatusID]int
}

// Executed returns the number of results that are not untested.
func (s Summary) Executed() int {
	var n int
	for id, c := range s.Counts {
		if id != StatusIDUntested {
			n += c
		}
	}
	return n
}

// ResultShape tells which variant a RunResults value carries.
type ResultShape string

const (
	ShapeDetailed ResultShape = "detailed"
	ShapeSummary  ResultShape = "summary"
)

// RunResults is the tagged result of fetching a run's outcomes: either the
// individual results or the run's coarse summary.
type RunResults struct {
	Shape   ResultShape
	Results []TestResult // ShapeDetailed only.
	Summary Summary      // ShapeSummary only.
	Reason  string       // Why only a summary is available.
}

// DetailedResults wraps individual results.
func DetailedResults(results []TestResult) RunResults {
	return RunResults{Shape: ShapeDetailed, Results: results}
}

// SummaryResults wraps a coarse summary with the reason detail is missing.
func SummaryResults(summary Summary, reason string) RunResults {
	return RunResults{Shape: ShapeSummary, Summary: summary, Reason: reason}
}
