package testrail

import (
	"time"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// Wire types for TestRail API v2. Optional upstream fields are pointers so a
// JSON null stays distinguishable from zero.

type linksDTO struct {
	Next *string `json:"next"`
}

type milestoneDTO struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	ProjectID   int64          `json:"project_id"`
	ParentID    *int64         `json:"parent_id"`
	IsCompleted bool           `json:"is_completed"`
	Milestones  []milestoneDTO `json:"milestones"`
}

type runDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SuiteID     *int64 `json:"suite_id"`
	PlanID      *int64 `json:"plan_id"`
	MilestoneID *int64 `json:"milestone_id"`
	CreatedOn   int64  `json:"created_on"`
	IsCompleted bool   `json:"is_completed"`

	PassedCount        int `json:"passed_count"`
	BlockedCount       int `json:"blocked_count"`
	UntestedCount      int `json:"untested_count"`
	RetestCount        int `json:"retest_count"`
	FailedCount        int `json:"failed_count"`
	CustomStatus1Count int `json:"custom_status1_count"`
	CustomStatus2Count int `json:"custom_status2_count"`
	CustomStatus3Count int `json:"custom_status3_count"`
	CustomStatus4Count int `json:"custom_status4_count"`
	CustomStatus5Count int `json:"custom_status5_count"`
	CustomStatus6Count int `json:"custom_status6_count"`
	CustomStatus7Count int `json:"custom_status7_count"`
}

type planEntryDTO struct {
	Runs []runDTO `json:"runs"`
}

type planDTO struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	MilestoneID *int64         `json:"milestone_id"`
	CreatedOn   int64          `json:"created_on"`
	Entries     []planEntryDTO `json:"entries"`
}

type resultDTO struct {
	ID        int64 `json:"id"`
	TestID    int64 `json:"test_id"`
	StatusID  *int  `json:"status_id"` // Null for comment-only results.
	CreatedOn int64 `json:"created_on"`
}

type testDTO struct {
	ID     int64 `json:"id"`
	CaseID int64 `json:"case_id"`
}

type caseDTO struct {
	ID        int64 `json:"id"`
	SectionID int64 `json:"section_id"`
}

type sectionDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

type errorDTO struct {
	Error string `json:"error"`
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func mapMilestone(m milestoneDTO) model.Milestone {
	out := model.Milestone{
		ID:          m.ID,
		Name:        m.Name,
		ProjectID:   m.ProjectID,
		ParentID:    deref(m.ParentID),
		IsCompleted: m.IsCompleted,
	}
	for _, c := range m.Milestones {
		out.Children = append(out.Children, mapMilestone(c))
	}
	return out
}

func mapRun(r runDTO) model.Run {
	return model.Run{
		ID:          r.ID,
		Name:        r.Name,
		SuiteID:     deref(r.SuiteID),
		PlanID:      deref(r.PlanID),
		MilestoneID: deref(r.MilestoneID),
		CreatedOn:   unixTime(r.CreatedOn),
		IsCompleted: r.IsCompleted,
		Summary:     mapSummary(r),
	}
}

// mapSummary keys the run's per-status counters by status ID. Zero counters
// are omitted.
func mapSummary(r runDTO) model.Summary {
	raw := []struct {
		id model.StatusID
		n  int
	}{
		{model.StatusIDPassed, r.PassedCount},
		{model.StatusIDBlocked, r.BlockedCount},
		{model.StatusIDUntested, r.UntestedCount},
		{model.StatusIDRetest, r.RetestCount},
		{model.StatusIDFailed, r.FailedCount},
		{model.StatusIDCustom1, r.CustomStatus1Count},
		{model.StatusIDCustom1 + 1, r.CustomStatus2Count},
		{model.StatusIDCustom1 + 2, r.CustomStatus3Count},
		{model.StatusIDCustom1 + 3, r.CustomStatus4Count},
		{model.StatusIDCustom1 + 4, r.CustomStatus5Count},
		{model.StatusIDCustom1 + 5, r.CustomStatus6Count},
		{model.StatusIDCustom1 + 6, r.CustomStatus7Count},
	}

	counts := make(map[model.StatusID]int)
	for _, c := range raw {
		if c.n > 0 {
			counts[c.id] = c.n
		}
	}
	return model.Summary{Counts: counts}
}

func mapResult(r resultDTO) (model.TestResult, bool) {
	if r.StatusID == nil {
		return model.TestResult{}, false
	}
	return model.TestResult{
		ID:        r.ID,
		TestID:    r.TestID,
		StatusID:  model.StatusID(*r.StatusID),
		CreatedOn: unixTime(r.CreatedOn),
	}, true
}
