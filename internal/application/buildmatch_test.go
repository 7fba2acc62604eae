package application_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/railpanel/internal/application"
	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

func TestBelongsToMilestone(t *testing.T) {
	tests := []struct {
		run, milestone string
		want           bool
	}{
		{"switch-18 MS350 Stack Build 1", "switch-18", true},
		{"SWITCH-18 ms350 stack build 1", "Switch-18", true},
		{"switch-17 MS350 Stack Build 1", "switch-18", false},
		{"switch-180 MS350", "switch-18", false},
		{"cs-17-20240105_120000 MS350", "cs-1", true},
		{"cs-17-nightly MS350", "cs-1", false},
		{"T-202401051200 nightly MS120", "nightly", true},
		{"T-202401051200 nightly MS120", "trunk", false},
		{"regression 20240105 MS120", "trunk", true},
		{"Cisco_IOS_XE_Software_Bld_V17_20240105 C9300", "aurora2", true},
		{"aurora3 build 4", "aurora3", true},
		{"aurora3 build 4", "aurora4", false},
		{"switch-17 vs switch-18 comparison", "switch-18", false},
		{"switch-17 vs switch-18 comparison", "switch-17", false},
		{"", "switch-18", false},
		{"switch-18 MS350", "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.milestone, tt.run), func(t *testing.T) {
			assert.Equal(t, tt.want, application.BelongsToMilestone(tt.run, tt.milestone))
		})
	}
}

func TestBelongsToMilestone_Total(t *testing.T) {
	inputs := []string{"", " ", "-", "\x00", "ünïcødé", "T-", "cs-17-", "20241399", "9999-99-99", "___"}
	for _, run := range inputs {
		for _, ms := range append(inputs, "switch-18", "trunk", "nightly") {
			assert.NotPanics(t, func() { application.BelongsToMilestone(run, ms) })
		}
	}
}

func switch18Runs() []model.Run {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := make([]model.Run, 0, 6)
	for i := 1; i <= 6; i++ {
		runs = append(runs, model.Run{
			ID:          int64(100 + i),
			Name:        fmt.Sprintf("switch-18 MS350 Stack Build %d", i),
			SuiteID:     7,
			MilestoneID: 18,
			CreatedOn:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	return runs
}

func TestSelectRecent_Switch18Scenario(t *testing.T) {
	runs := switch18Runs()

	got := application.SelectRecent(runs, 5)

	require.Len(t, got, 5)
	for i, r := range got {
		assert.Equal(t, fmt.Sprintf("switch-18 MS350 Stack Build %d", 6-i), r.Name)
		assert.True(t, application.BelongsToMilestone(r.Name, "switch-18"))
		assert.Equal(t, model.Platform{Family: model.FamilyMS, Model: "MS350"}, application.ExtractPlatform(r.Name))
		assert.Equal(t, model.DeviceStack, application.ExtractDeviceType(r.Name))
	}
	assert.Equal(t, "switch-18 MS350 Stack Build 1", runs[0].Name, "input is not reordered")
}

func TestSelectRecent_Bounds(t *testing.T) {
	runs := switch18Runs()

	assert.Empty(t, application.SelectRecent(runs, 0))
	assert.NotNil(t, application.SelectRecent(runs, -1))
	assert.Empty(t, application.SelectRecent(nil, 5))
	assert.Len(t, application.SelectRecent(runs, 10), 6)
}

func TestSelectRecent_TieBreakByID(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: 9, Name: "c", CreatedOn: at},
		{ID: 3, Name: "a", CreatedOn: at},
		{ID: 5, Name: "b", CreatedOn: at},
		{ID: 1, Name: "old", CreatedOn: at.Add(-time.Hour)},
	}

	first := application.SelectRecent(runs, 3)
	second := application.SelectRecent(runs, 3)

	require.Len(t, first, 3)
	assert.Equal(t, []int64{3, 5, 9}, []int64{first[0].ID, first[1].ID, first[2].ID})
	assert.Equal(t, first, second)
}

func TestParseBuildDate(t *testing.T) {
	tests := []struct {
		name string
		want time.Time
		ok   bool
	}{
		{"T-202401051230 nightly", time.Date(2024, 1, 5, 12, 30, 0, 0, time.UTC), true},
		{"cs-17-20240105_123015", time.Date(2024, 1, 5, 12, 30, 15, 0, time.UTC), true},
		{"build 2024-02-29 MS350", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"build_20231231", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"build 20231399", time.Time{}, false},
		{"build 123", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := application.ParseBuildDate(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
