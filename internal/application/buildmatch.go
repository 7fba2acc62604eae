package application

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// namingVariant is one way a build of a release can be named.
type namingVariant struct {
	alias    string // Lower-case text the name must contain.
	anchored bool   // Alias must prefix the name.
	dated    bool   // Name must also carry a parseable build date.
	token    bool   // Alias must sit between non-alphanumeric characters.
}

// specificity ranks a variant against others matching the same name.
func (v namingVariant) specificity() int {
	return len(v.alias)
}

func (v namingVariant) matches(name string) bool {
	switch {
	case v.anchored && !strings.HasPrefix(name, v.alias):
		return false
	case v.token && !containsToken(name, v.alias):
		return false
	case !v.anchored && !v.token && !strings.Contains(name, v.alias):
		return false
	}
	if v.dated {
		if _, ok := ParseBuildDate(name); !ok {
			return false
		}
	}
	return true
}

// namingConventions maps a release milestone (lower-case) to the build names
// it claims. Milestones missing here claim only their own name as a token.
var namingConventions = map[string][]namingVariant{
	"cs-1": {
		{alias: "cs-17-", anchored: true, dated: true},
		{alias: "cs-1", token: true},
	},
	"switch-17": {
		{alias: "switch-17", token: true},
	},
	"switch-18": {
		{alias: "switch-18", token: true},
	},
	"nightly": {
		{alias: "t-", anchored: true, dated: true},
		{alias: "nightly", token: true},
	},
	"aurora2": {
		{alias: "cisco_ios_xe_software_bld_v17", dated: true},
		{alias: "cisco_ios_xe_software_bld_v16", dated: true},
		{alias: "aurora2", token: true},
	},
	"trunk": {
		{alias: "", dated: true},
		{alias: "trunk", token: true},
	},
}

func variantsFor(milestone string) []namingVariant {
	if v, ok := namingConventions[milestone]; ok {
		return v
	}
	return []namingVariant{{alias: milestone, token: true}}
}

// BelongsToMilestone reports whether a run name is a build of milestone. Every
// known convention plus the milestone's own competes for the name; the most
// specific match wins and a tie between different milestones claims nothing.
// Comparison is case-insensitive.
func BelongsToMilestone(runName, milestone string) bool {
	name := strings.ToLower(strings.TrimSpace(runName))
	target := strings.ToLower(strings.TrimSpace(milestone))
	if name == "" || target == "" {
		return false
	}

	best := -1
	var winners []string
	offer := func(owner string, variants []namingVariant) {
		for _, v := range variants {
			if !v.matches(name) {
				continue
			}
			switch s := v.specificity(); {
			case s > best:
				best = s
				winners = append(winners[:0], owner)
			case s == best && !contains(winners, owner):
				winners = append(winners, owner)
			}
		}
	}

	for owner, variants := range namingConventions {
		offer(owner, variants)
	}
	if _, known := namingConventions[target]; !known {
		offer(target, variantsFor(target))
	}

	return len(winners) == 1 && winners[0] == target
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// SelectRecent returns up to n runs ordered newest first. Runs created at the
// same instant are ordered by ascending ID. The input is not modified.
func SelectRecent(runs []model.Run, n int) []model.Run {
	if n <= 0 || len(runs) == 0 {
		return []model.Run{}
	}

	sorted := make([]model.Run, len(runs))
	copy(sorted, runs)
	sortNewestFirst(sorted)

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func sortNewestFirst(runs []model.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedOn.Equal(runs[j].CreatedOn) {
			return runs[i].CreatedOn.After(runs[j].CreatedOn)
		}
		return runs[i].ID < runs[j].ID
	})
}

var buildDateLayouts = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(?:^|\D)(\d{8}_\d{6})(?:\D|$)`), "20060102_150405"},
	{regexp.MustCompile(`(?:^|\D)(\d{12})(?:\D|$)`), "200601021504"},
	{regexp.MustCompile(`(?:^|\D)(\d{4}-\d{2}-\d{2})(?:\D|$)`), "2006-01-02"},
	{regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`), "20060102"},
}

// ParseBuildDate extracts the build timestamp embedded in a build name, in UTC.
// Recognized forms are YYYYMMDDHHmm, YYYYMMDD_HHmmss, YYYY-MM-DD and YYYYMMDD.
func ParseBuildDate(name string) (time.Time, bool) {
	for _, l := range buildDateLayouts {
		m := l.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		t, err := time.Parse(l.layout, m[1])
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
