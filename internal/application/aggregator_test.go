package application_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/railpanel/internal/application"
	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

var ms350Stack = model.Run{
	ID:         42,
	Name:       "switch-18 MS350 Stack 20240105",
	SuiteID:    7,
	CreatedOn:  time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
	Platform:   model.Platform{Family: model.FamilyMS, Model: "MS350"},
	DeviceType: model.DeviceStack,
}

func summaryOf(counts map[model.StatusID]int) model.Summary {
	return model.Summary{Counts: counts}
}

func TestAggregate_SummaryScenario(t *testing.T) {
	agg := application.NewAggregator(nil, nil)

	stats := agg.Aggregate(application.AggregateInput{
		Milestone: "switch-18",
		Run:       ms350Stack,
		Results: model.SummaryResults(summaryOf(map[model.StatusID]int{
			model.StatusIDPassed:  80,
			model.StatusIDFailed:  15,
			model.StatusIDCustom1: 5,
		}), "results endpoint forbidden"),
		WithSections: true,
	})

	assert.Equal(t, model.StatusCounts{Pass: 80, Fail: 15, Error: 5}, stats.Counts)
	assert.Equal(t, model.StatusPercentages{Pass: 80.0, Fail: 15.0, Error: 5.0}, stats.Percentages)
	assert.Equal(t, model.ShapeSummary, stats.Detail)
	assert.Equal(t, model.SectionsInsufficientDetail, stats.SectionStatus)
	assert.Empty(t, stats.Sections)

	err := stats.SectionsErr()
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientDetail))
	var ide *model.InsufficientDetailError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, int64(42), ide.RunID)

	assert.Equal(t, "switch-18", stats.Milestone)
	assert.Equal(t, int64(42), stats.Scope.RunID)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), stats.BuildDate)
}

func TestAggregate_Detailed(t *testing.T) {
	agg := application.NewAggregator(nil, nil)
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	results := []model.TestResult{
		{ID: 1, TestID: 10, StatusID: model.StatusIDFailed, CreatedOn: at, SectionID: 2},
		{ID: 2, TestID: 10, StatusID: model.StatusIDPassed, CreatedOn: at.Add(time.Minute), SectionID: 2}, // rerun passed
		{ID: 3, TestID: 11, StatusID: model.StatusIDFailed, CreatedOn: at, SectionID: 2},
		{ID: 4, TestID: 12, StatusID: model.StatusIDCustom1, CreatedOn: at, SectionID: 3},
		{ID: 5, TestID: 13, StatusID: model.StatusIDFailed, CreatedOn: at, SectionID: 2},
		{ID: 6, TestID: 14, StatusID: model.StatusIDFailed, CreatedOn: at},
		{ID: 7, TestID: 15, StatusID: model.StatusIDRetest, CreatedOn: at},
		{ID: 8, TestID: 16, StatusID: model.StatusIDBlocked, CreatedOn: at},
		{ID: 9, TestID: 17, StatusID: model.StatusIDPassed, CreatedOn: at},
		{ID: 11, TestID: 18, StatusID: model.StatusIDFailed, CreatedOn: at},
		{ID: 10, TestID: 18, StatusID: model.StatusIDPassed, CreatedOn: at}, // same time, lower ID loses
	}

	stats := agg.Aggregate(application.AggregateInput{
		Milestone:    "switch-18",
		Run:          ms350Stack,
		Results:      model.DetailedResults(results),
		SectionPaths: map[int64]string{2: "Layer 2 > VLAN", 3: "Routing"},
		WithSections: true,
	})

	assert.Equal(t, model.StatusCounts{Pass: 2, Fail: 4, Error: 1, Blocked: 1}, stats.Counts)
	assert.Equal(t, map[string]int{"retest": 1}, stats.Excluded)
	assert.Equal(t, model.ShapeDetailed, stats.Detail)
	assert.Equal(t, model.SectionsRanked, stats.SectionStatus)
	assert.NoError(t, stats.SectionsErr())
	assert.Equal(t, []model.SectionFailure{
		{Section: model.UnmappedSection, Failures: 2},
		{Section: "Layer 2 > VLAN", Failures: 2},
		{Section: "Routing", Failures: 1},
	}, stats.Sections)
	assert.InDelta(t, 100.0, stats.Percentages.Sum(), 1e-9)
}

func TestAggregate_SectionsNotRequested(t *testing.T) {
	agg := application.NewAggregator(nil, nil)

	stats := agg.Aggregate(application.AggregateInput{
		Run: ms350Stack,
		Results: model.DetailedResults([]model.TestResult{
			{ID: 1, TestID: 1, StatusID: model.StatusIDFailed, SectionID: 2},
		}),
	})

	assert.Equal(t, model.SectionsNotRequested, stats.SectionStatus)
	assert.Empty(t, stats.Sections)
	assert.NoError(t, stats.SectionsErr())
}

func TestAggregate_CustomPolicy(t *testing.T) {
	policy, err := model.ParseStatusOverrides(model.DefaultStatusPolicy(), "4=fail,3=exclude")
	require.NoError(t, err)
	agg := application.NewAggregator(policy, nil)

	stats := agg.Aggregate(application.AggregateInput{
		Run: ms350Stack,
		Results: model.SummaryResults(summaryOf(map[model.StatusID]int{
			model.StatusIDPassed:   6,
			model.StatusIDRetest:   2,
			model.StatusIDUntested: 3,
			model.StatusID(9):      1,
		}), ""),
	})

	assert.Equal(t, model.StatusCounts{Pass: 6, Fail: 2}, stats.Counts)
	assert.Equal(t, map[string]int{"untested": 3, "custom_status4": 1}, stats.Excluded)
	assert.Equal(t, 75.0, stats.Percentages.Pass)
	assert.Equal(t, 25.0, stats.Percentages.Fail)
}

func TestAggregate_PercentagesSumTo100(t *testing.T) {
	agg := application.NewAggregator(nil, nil)
	cases := []map[model.StatusID]int{
		{model.StatusIDPassed: 1, model.StatusIDFailed: 1, model.StatusIDBlocked: 1},
		{model.StatusIDPassed: 2, model.StatusIDFailed: 1},
		{model.StatusIDPassed: 997, model.StatusIDFailed: 1, model.StatusIDBlocked: 1, model.StatusIDCustom1: 1},
		{model.StatusIDPassed: 1, model.StatusIDFailed: 1, model.StatusIDBlocked: 1, model.StatusIDCustom1: 1, model.StatusIDCustom2: 2},
		{model.StatusIDFailed: 7},
		{model.StatusIDPassed: 1, model.StatusIDFailed: 1, model.StatusIDCustom1: 3, model.StatusIDBlocked: 8, model.StatusIDCustom2: 1},
	}
	for _, counts := range cases {
		stats := agg.Aggregate(application.AggregateInput{
			Run:     ms350Stack,
			Results: model.SummaryResults(summaryOf(counts), ""),
		})
		require.Positive(t, stats.Total())
		assert.InDelta(t, 100.0, stats.Percentages.Sum(), 1e-9, "counts %v", counts)
	}
}

func TestAggregate_EmptyRun(t *testing.T) {
	agg := application.NewAggregator(nil, nil)

	stats := agg.Aggregate(application.AggregateInput{Run: ms350Stack, Results: model.DetailedResults(nil)})

	assert.Zero(t, stats.Total())
	assert.Equal(t, model.StatusPercentages{}, stats.Percentages)
}

func TestRollupByPlatform(t *testing.T) {
	ms350 := model.Platform{Family: model.FamilyMS, Model: "MS350"}
	c9300 := model.Platform{Family: model.FamilyCatalyst, Model: "C9300"}
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	stats := []model.AggregatedStats{
		{
			Scope:         model.Scope{RunID: 1, Platform: ms350, DeviceType: model.DeviceStack},
			CreatedOn:     older,
			Runs:          1,
			Counts:        model.StatusCounts{Pass: 8, Fail: 2},
			Detail:        model.ShapeDetailed,
			SectionStatus: model.SectionsRanked,
			Sections:      []model.SectionFailure{{Section: "Routing", Failures: 2}},
			Excluded:      map[string]int{"retest": 1},
		},
		{
			Scope:         model.Scope{RunID: 2, Platform: ms350, DeviceType: model.DeviceStack},
			CreatedOn:     newer,
			Runs:          1,
			Counts:        model.StatusCounts{Pass: 5, Error: 5},
			Detail:        model.ShapeSummary,
			SectionStatus: model.SectionsInsufficientDetail,
		},
		{
			Scope:         model.Scope{RunID: 3, Platform: c9300, DeviceType: model.DeviceSingle},
			CreatedOn:     older,
			Runs:          1,
			Counts:        model.StatusCounts{Pass: 1},
			Detail:        model.ShapeDetailed,
			SectionStatus: model.SectionsRanked,
		},
	}

	got := application.RollupByPlatform(stats)

	require.Len(t, got, 2)
	assert.Equal(t, c9300, got[0].Scope.Platform)
	assert.Equal(t, 100.0, got[0].Percentages.Pass)

	ms := got[1]
	assert.Equal(t, ms350, ms.Scope.Platform)
	assert.Equal(t, model.DeviceStack, ms.Scope.DeviceType)
	assert.Zero(t, ms.Scope.RunID)
	assert.Equal(t, 2, ms.Runs)
	assert.Equal(t, model.StatusCounts{Pass: 13, Fail: 2, Error: 5}, ms.Counts)
	assert.Equal(t, newer, ms.CreatedOn)
	assert.Equal(t, model.ShapeSummary, ms.Detail)
	assert.Equal(t, model.SectionsInsufficientDetail, ms.SectionStatus)
	assert.Equal(t, []model.SectionFailure{{Section: "Routing", Failures: 2}}, ms.Sections)
	assert.Equal(t, map[string]int{"retest": 1}, ms.Excluded)
	assert.InDelta(t, 100.0, ms.Percentages.Sum(), 1e-9)
}
