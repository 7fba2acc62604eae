package driven

import (
	"context"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// TestRailClient defines the driven port for reading test execution data from
// TestRail. Implementations own pagination, rate limiting and retries; errors
// are classified into the typed errors of the model package.
type TestRailClient interface {
	// FindMilestone resolves a milestone by exact, case-insensitive name,
	// including its build sub-milestones. Returns *model.NotFoundError when no
	// milestone matches.
	FindMilestone(ctx context.Context, projectID int64, name string) (*model.Milestone, error)
	// ListRuns returns at most limit runs attached to the milestone or its
	// children, newest first.
	ListRuns(ctx context.Context, projectID int64, milestone model.Milestone, limit int) ([]model.Run, error)
	// ListResults returns the run's individual results, or its summary when the
	// upstream does not expose per-test detail.
	ListResults(ctx context.Context, run model.Run) (model.RunResults, error)
	// ListSections returns section ID to display path ("Parent > Child") for a suite.
	ListSections(ctx context.Context, projectID, suiteID int64) (map[int64]string, error)
	// ListTestSections returns test ID to section ID for a run.
	ListTestSections(ctx context.Context, projectID int64, run model.Run) (map[int64]int64, error)
}
