package testrail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// FindMilestone resolves a milestone by exact, case-insensitive name. When
// several milestones share the name, the one with the most build
// sub-milestones wins (lowest ID on a tie).
func (c *Client) FindMilestone(ctx context.Context, projectID int64, name string) (*model.Milestone, error) {
	all, err := getPaged[milestoneDTO](ctx, c, "get_milestones", fmt.Sprintf("get_milestones/%d", projectID), "milestones", 0)
	if err != nil {
		return nil, fmt.Errorf("listing milestones for project %d: %w", projectID, err)
	}

	var candidates []model.Milestone
	collect := func(list []milestoneDTO) {
		for _, m := range list {
			if strings.EqualFold(strings.TrimSpace(m.Name), strings.TrimSpace(name)) {
				candidates = append(candidates, mapMilestone(m))
			}
		}
	}
	collect(all)
	for _, m := range all {
		collect(m.Milestones)
	}
	if len(candidates) == 0 {
		return nil, &model.NotFoundError{Kind: "milestone", Name: name}
	}

	for i := range candidates {
		if len(candidates[i].Children) > 0 {
			continue
		}
		children, err := c.milestoneChildren(ctx, candidates[i].ID, all)
		if err != nil {
			return nil, err
		}
		candidates[i].Children = children
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].Children) != len(candidates[j].Children) {
			return len(candidates[i].Children) > len(candidates[j].Children)
		}
		return candidates[i].ID < candidates[j].ID
	})

	best := candidates[0]
	c.logger.Debug("milestone resolved", "milestone", best.Name, "id", best.ID, "children", len(best.Children))
	return &best, nil
}

// milestoneChildren asks get_milestone for the sub-milestones and falls back
// to scanning the project listing by parent_id.
func (c *Client) milestoneChildren(ctx context.Context, id int64, all []milestoneDTO) ([]model.Milestone, error) {
	var detail milestoneDTO
	err := c.getObject(ctx, "get_milestone", fmt.Sprintf("get_milestone/%d", id), &detail)
	switch {
	case err == nil && len(detail.Milestones) > 0:
		children := make([]model.Milestone, 0, len(detail.Milestones))
		for _, m := range detail.Milestones {
			children = append(children, mapMilestone(m))
		}
		return children, nil
	case err != nil && model.IsAuth(err):
		return nil, fmt.Errorf("fetching milestone %d: %w", id, err)
	case err != nil:
		c.logger.Debug("milestone detail unavailable, scanning listing", "id", id, "error", err)
	}

	var children []model.Milestone
	for _, m := range all {
		if deref(m.ParentID) == id {
			children = append(children, mapMilestone(m))
		}
	}
	return children, nil
}

// ListRuns returns up to limit runs attached to the milestone or any of its
// sub-milestones, newest first. Runs inside test plans are included when the
// client is configured with IncludePlans.
func (c *Client) ListRuns(ctx context.Context, projectID int64, milestone model.Milestone, limit int) ([]model.Run, error) {
	ids := joinIDs(milestone.IDs())
	names := make(map[int64]string, len(milestone.Children))
	for _, ch := range milestone.Children {
		names[ch.ID] = ch.Name
	}

	dtos, err := getPaged[runDTO](ctx, c, "get_runs",
		fmt.Sprintf("get_runs/%d&milestone_id=%s", projectID, ids), "runs", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs for milestone %s: %w", milestone.Name, err)
	}

	if c.cfg.IncludePlans {
		planRuns, err := c.listPlanRuns(ctx, projectID, milestone, ids, limit)
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, planRuns...)
	}

	seen := make(map[int64]bool, len(dtos))
	runs := make([]model.Run, 0, len(dtos))
	for _, d := range dtos {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		r := mapRun(d)
		r.MilestoneName = names[r.MilestoneID]
		runs = append(runs, r)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedOn.Equal(runs[j].CreatedOn) {
			return runs[i].CreatedOn.After(runs[j].CreatedOn)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	c.logger.Debug("runs listed", "milestone", milestone.Name, "count", len(runs))
	return runs, nil
}

func (c *Client) listPlanRuns(ctx context.Context, projectID int64, milestone model.Milestone, ids string, limit int) ([]runDTO, error) {
	plans, err := getPaged[planDTO](ctx, c, "get_plans",
		fmt.Sprintf("get_plans/%d&milestone_id=%s", projectID, ids), "plans", limit)
	if err != nil {
		return nil, fmt.Errorf("listing plans for milestone %s: %w", milestone.Name, err)
	}

	var runs []runDTO
	for _, p := range plans {
		var detail planDTO
		if err := c.getObject(ctx, "get_plan", fmt.Sprintf("get_plan/%d", p.ID), &detail); err != nil {
			return nil, fmt.Errorf("fetching plan %d: %w", p.ID, err)
		}
		for _, e := range detail.Entries {
			for _, r := range e.Runs {
				if r.PlanID == nil {
					id := p.ID
					r.PlanID = &id
				}
				if r.MilestoneID == nil {
					r.MilestoneID = p.MilestoneID
				}
				if r.CreatedOn == 0 {
					r.CreatedOn = p.CreatedOn
				}
				runs = append(runs, r)
			}
		}
	}
	return runs, nil
}

// ListResults returns the run's individual results. It falls back to the
// run's summary counts when the results endpoint is forbidden for the account
// or stores nothing although the run reports executed tests.
func (c *Client) ListResults(ctx context.Context, run model.Run) (model.RunResults, error) {
	dtos, err := getPaged[resultDTO](ctx, c, "get_results_for_run",
		fmt.Sprintf("get_results_for_run/%d", run.ID), "results", 0)
	if err != nil {
		var ae *model.AuthError
		if errors.As(err, &ae) && ae.StatusCode == http.StatusForbidden {
			c.logger.Info("per-test results forbidden, using run summary", "run_id", run.ID, "run", run.Name)
			return model.SummaryResults(run.Summary, "results endpoint forbidden"), nil
		}
		return model.RunResults{}, fmt.Errorf("listing results for run %d: %w", run.ID, err)
	}

	results := make([]model.TestResult, 0, len(dtos))
	for _, d := range dtos {
		if r, ok := mapResult(d); ok {
			results = append(results, r)
		}
	}

	if len(results) == 0 && run.Summary.Executed() > 0 {
		c.logger.Info("run has no stored results, using run summary", "run_id", run.ID, "run", run.Name)
		return model.SummaryResults(run.Summary, "no per-test results stored"), nil
	}
	return model.DetailedResults(results), nil
}

// ListSections returns the display path of every section in a suite, e.g.
// "Layer 2 > VLAN".
func (c *Client) ListSections(ctx context.Context, projectID, suiteID int64) (map[int64]string, error) {
	endpoint := fmt.Sprintf("get_sections/%d", projectID)
	if suiteID > 0 {
		endpoint += fmt.Sprintf("&suite_id=%d", suiteID)
	}
	dtos, err := getPaged[sectionDTO](ctx, c, "get_sections", endpoint, "sections", 0)
	if err != nil {
		return nil, fmt.Errorf("listing sections for suite %d: %w", suiteID, err)
	}
	return sectionPaths(dtos), nil
}

func sectionPaths(sections []sectionDTO) map[int64]string {
	byID := make(map[int64]sectionDTO, len(sections))
	for _, s := range sections {
		byID[s.ID] = s
	}

	paths := make(map[int64]string, len(sections))
	for _, s := range sections {
		var parts []string
		visited := make(map[int64]bool)
		for cur, ok := s, true; ok && !visited[cur.ID]; cur, ok = byID[deref(cur.ParentID)] {
			visited[cur.ID] = true
			parts = append(parts, strings.TrimSpace(cur.Name))
			if cur.ParentID == nil {
				break
			}
		}
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
		paths[s.ID] = strings.Join(parts, " > ")
	}
	return paths
}

// ListTestSections maps every test in the run to the section of its case.
func (c *Client) ListTestSections(ctx context.Context, projectID int64, run model.Run) (map[int64]int64, error) {
	tests, err := getPaged[testDTO](ctx, c, "get_tests", fmt.Sprintf("get_tests/%d", run.ID), "tests", 0)
	if err != nil {
		return nil, fmt.Errorf("listing tests for run %d: %w", run.ID, err)
	}

	endpoint := fmt.Sprintf("get_cases/%d", projectID)
	if run.SuiteID > 0 {
		endpoint += fmt.Sprintf("&suite_id=%d", run.SuiteID)
	}
	cases, err := getPaged[caseDTO](ctx, c, "get_cases", endpoint, "cases", 0)
	if err != nil {
		return nil, fmt.Errorf("listing cases for suite %d: %w", run.SuiteID, err)
	}

	caseSection := make(map[int64]int64, len(cases))
	for _, cs := range cases {
		caseSection[cs.ID] = cs.SectionID
	}

	out := make(map[int64]int64, len(tests))
	for _, t := range tests {
		if sid, ok := caseSection[t.CaseID]; ok {
			out[t.ID] = sid
		}
	}
	return out, nil
}
