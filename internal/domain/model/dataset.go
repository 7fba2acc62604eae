package model

// PipelineState is the stage a pipeline invocation reached.
type PipelineState string

const (
	StateResolvingMilestone PipelineState = "resolving_milestone"
	StateListingRuns        PipelineState = "listing_runs"
	StateProcessing         PipelineState = "processing"
	StateDone               PipelineState = "done"

	// Terminal failure states.
	StateMilestoneNotFound PipelineState = "milestone_not_found"
	StateNoQualifyingRuns  PipelineState = "no_qualifying_runs"
	StateFailed            PipelineState = "failed"
)

// RunAnnotation describes how complete a run's entry in the dataset is.
type RunAnnotation string

const (
	AnnotationOK              RunAnnotation = "ok"
	AnnotationPartiallyFailed RunAnnotation = "partially_failed"
	AnnotationSummaryOnly     RunAnnotation = "summary_only"
)

// RunReport is one selected run's entry in the dataset.
type RunReport struct {
	Run        Run              `json:"run"`
	Annotation RunAnnotation    `json:"annotation"`
	Reason     string           `json:"reason,omitempty"`
	Err        error            `json:"-"`
	CacheHit   bool             `json:"cache_hit"`
	Stats      *AggregatedStats `json:"stats,omitempty"` // Nil when the run failed.
}

// Failed reports whether the run is excluded from aggregate comparisons.
func (r RunReport) Failed() bool {
	return r.Annotation == AnnotationPartiallyFailed
}

// DataCondition summarizes why a dataset does or does not hold data.
type DataCondition string

const (
	ConditionComplete                 DataCondition = "complete"
	ConditionMilestoneNotFound        DataCondition = "milestone_not_found"
	ConditionNoQualifyingRuns         DataCondition = "no_qualifying_runs"
	ConditionAllFetchesFailed         DataCondition = "all_fetches_failed"
	ConditionSectionDetailUnavailable DataCondition = "section_detail_unavailable"
)

// Dataset is the normalized pipeline output handed to presentation layers.
type Dataset struct {
	SessionID string            `json:"session_id"`
	Milestone Milestone         `json:"milestone"`
	State     PipelineState     `json:"state"`
	Condition DataCondition     `json:"condition"`
	Runs      []RunReport       `json:"runs"`      // Newest first.
	Platforms []AggregatedStats `json:"platforms"` // Platform x device rollup over non-failed runs.
	Sections  bool              `json:"sections_requested"`
}

// Evaluate derives the dataset condition from its state and run reports.
func (d *Dataset) Evaluate() DataCondition {
	switch d.State {
	case StateMilestoneNotFound:
		return ConditionMilestoneNotFound
	case StateNoQualifyingRuns:
		return ConditionNoQualifyingRuns
	case StateFailed:
		return ConditionAllFetchesFailed
	}

	var ok int
	var insufficient bool
	for _, r := range d.Runs {
		if r.Failed() {
			continue
		}
		ok++
		if r.Stats != nil && r.Stats.SectionStatus == SectionsInsufficientDetail {
			insufficient = true
		}
	}

	switch {
	case len(d.Runs) > 0 && ok == 0:
		return ConditionAllFetchesFailed
	case len(d.Runs) == 0:
		return ConditionNoQualifyingRuns
	case insufficient:
		return ConditionSectionDetailUnavailable
	default:
		return ConditionComplete
	}
}

// Successful returns the reports of runs that were not marked failed.
func (d *Dataset) Successful() []RunReport {
	out := make([]RunReport, 0, len(d.Runs))
	for _, r := range d.Runs {
		if !r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
