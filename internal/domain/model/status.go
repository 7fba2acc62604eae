package model

import (
	"sort"
	"strconv"
)

// Status is one of the five canonical outcomes railpanel reports on.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
	StatusBlocked Status = "blocked"
	StatusSkip    Status = "skip"
)

// CanonicalStatuses lists the canonical statuses in display order.
var CanonicalStatuses = []Status{StatusPass, StatusFail, StatusError, StatusBlocked, StatusSkip}

// ParseStatus returns the canonical status for s, or false if s is not canonical.
func ParseStatus(s string) (Status, bool) {
	for _, st := range CanonicalStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsFailure reports whether the status counts toward section failure ranking.
func (s Status) IsFailure() bool {
	return s == StatusFail || s == StatusError
}

// StatusID is TestRail's numeric status identifier.
type StatusID int

// Built-in TestRail statuses. IDs 6 and up are instance-defined custom statuses;
// custom_status1 is ID 6, custom_status2 is ID 7 and so on.
const (
	StatusIDPassed   StatusID = 1
	StatusIDBlocked  StatusID = 2
	StatusIDUntested StatusID = 3
	StatusIDRetest   StatusID = 4
	StatusIDFailed   StatusID = 5
	StatusIDCustom1  StatusID = 6
	StatusIDCustom2  StatusID = 7
)

// Label returns a stable lowercase name for the upstream status, used when
// reporting excluded statuses.
func (id StatusID) Label() string {
	switch id {
	case StatusIDPassed:
		return "passed"
	case StatusIDBlocked:
		return "blocked"
	case StatusIDUntested:
		return "untested"
	case StatusIDRetest:
		return "retest"
	case StatusIDFailed:
		return "failed"
	}
	if id >= StatusIDCustom1 {
		return "custom_status" + strconv.Itoa(int(id-StatusIDCustom1+1))
	}
	return "status_" + strconv.Itoa(int(id))
}

// StatusCounts holds the number of results per canonical status.
type StatusCounts struct {
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Error   int `json:"error"`
	Blocked int `json:"blocked"`
	Skip    int `json:"skip"`
}

// Add increments the counter for status s by n. Unknown statuses are ignored.
func (c *StatusCounts) Add(s Status, n int) {
	switch s {
	case StatusPass:
		c.Pass += n
	case StatusFail:
		c.Fail += n
	case StatusError:
		c.Error += n
	case StatusBlocked:
		c.Blocked += n
	case StatusSkip:
		c.Skip += n
	}
}

// Get returns the counter for status s.
func (c StatusCounts) Get(s Status) int {
	switch s {
	case StatusPass:
		return c.Pass
	case StatusFail:
		return c.Fail
	case StatusError:
		return c.Error
	case StatusBlocked:
		return c.Blocked
	case StatusSkip:
		return c.Skip
	default:
		return 0
	}
}

// Plus returns the element-wise sum of c and o.
func (c StatusCounts) Plus(o StatusCounts) StatusCounts {
	return StatusCounts{
		Pass:    c.Pass + o.Pass,
		Fail:    c.Fail + o.Fail,
		Error:   c.Error + o.Error,
		Blocked: c.Blocked + o.Blocked,
		Skip:    c.Skip + o.Skip,
	}
}

// Total returns the number of counted results.
func (c StatusCounts) Total() int {
	return c.Pass + c.Fail + c.Error + c.Blocked + c.Skip
}

// Failures returns fail + error.
func (c StatusCounts) Failures() int {
	return c.Fail + c.Error
}

// StatusPercentages holds per-status percentages rounded to one decimal.
type StatusPercentages struct {
	Pass    float64 `json:"pass"`
	Fail    float64 `json:"fail"`
	Error   float64 `json:"error"`
	Blocked float64 `json:"blocked"`
	Skip    float64 `json:"skip"`
}

// Percentages computes the share of each status in tenths of a percent. The
// tenths left over after truncation go to the statuses with the largest
// remainders, so the five values always add up to exactly 100. A zero total
// yields all zeros.
func (c StatusCounts) Percentages() StatusPercentages {
	total := c.Total()
	if total == 0 {
		return StatusPercentages{}
	}

	counts := [5]int{c.Pass, c.Fail, c.Error, c.Blocked, c.Skip}
	var tenths, remainders [5]int
	left := 1000
	for i, n := range counts {
		tenths[i] = n * 1000 / total
		remainders[i] = n * 1000 % total
		left -= tenths[i]
	}

	order := []int{0, 1, 2, 3, 4}
	sort.SliceStable(order, func(a, b int) bool { return remainders[order[a]] > remainders[order[b]] })
	for _, i := range order[:left] {
		tenths[i]++
	}

	return StatusPercentages{
		Pass:    float64(tenths[0]) / 10,
		Fail:    float64(tenths[1]) / 10,
		Error:   float64(tenths[2]) / 10,
		Blocked: float64(tenths[3]) / 10,
		Skip:    float64(tenths[4]) / 10,
	}
}

// Sum returns the sum of all five percentages.
func (p StatusPercentages) Sum() float64 {
	return p.Pass + p.Fail + p.Error + p.Blocked + p.Skip
}
