package model

import "time"

// SectionStatus tells whether a section failure ranking could be computed.
type SectionStatus string

const (
	SectionsRanked             SectionStatus = "ranked"
	SectionsNotRequested       SectionStatus = "not_requested"
	SectionsInsufficientDetail SectionStatus = "insufficient_detail"
)

// UnmappedSection labels failures whose section could not be resolved.
const UnmappedSection = "(unmapped)"

// SectionFailure is a section path and the number of failing results in it.
type SectionFailure struct {
	Section  string `json:"section"`
	Failures int    `json:"failures"`
}

// Scope identifies what an AggregatedStats value covers. A zero RunID means
// the stats span several runs; an empty Platform or DeviceType means all.
type Scope struct {
	RunID      int64      `json:"run_id,omitempty"`
	RunName    string     `json:"run_name,omitempty"`
	Platform   Platform   `json:"platform"`
	DeviceType DeviceType `json:"device_type"`
}

// AggregatedStats is the output unit: status counts and percentages for a
// scope plus, when detailed data exists, the ranked failing sections.
type AggregatedStats struct {
	Milestone     string            `json:"milestone"`
	Scope         Scope             `json:"scope"`
	CreatedOn     time.Time         `json:"created_on,omitzero"`
	BuildDate     time.Time         `json:"build_date,omitzero"`
	Runs          int               `json:"runs"`
	Counts        StatusCounts      `json:"counts"`
	Percentages   StatusPercentages `json:"percentages"`
	Excluded      map[string]int    `json:"excluded,omitempty"`
	Detail        ResultShape       `json:"detail"`
	SectionStatus SectionStatus     `json:"section_status"`
	Sections      []SectionFailure  `json:"sections,omitempty"`
}

// Total returns the number of counted results.
func (s AggregatedStats) Total() int {
	return s.Counts.Total()
}

// SectionsErr returns an *InsufficientDetailError when the ranking could not be
// computed because only summary data was available, and nil otherwise.
func (s AggregatedStats) SectionsErr() error {
	if s.SectionStatus != SectionsInsufficientDetail {
		return nil
	}
	return &InsufficientDetailError{RunID: s.Scope.RunID, RunName: s.Scope.RunName}
}
