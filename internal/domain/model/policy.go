package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StatusPolicy maps upstream status IDs to canonical statuses. IDs absent from
// the policy are excluded from counting and reported separately.
type StatusPolicy map[StatusID]Status

// DefaultStatusPolicy returns the mapping used when no override is configured.
// Untested folds into skip; retest and custom statuses beyond the second are
// excluded.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{
		StatusIDPassed:   StatusPass,
		StatusIDFailed:   StatusFail,
		StatusIDBlocked:  StatusBlocked,
		StatusIDCustom1:  StatusError,
		StatusIDCustom2:  StatusSkip,
		StatusIDUntested: StatusSkip,
	}
}

// Map returns the canonical status for id, or false when id is excluded.
func (p StatusPolicy) Map(id StatusID) (Status, bool) {
	s, ok := p[id]
	return s, ok
}

// ParseStatusOverrides applies a comma-separated list of "id=status" pairs to
// a copy of base. The target "exclude" removes the ID from the policy.
// Example: "4=fail,8=error,3=exclude".
func ParseStatusOverrides(base StatusPolicy, overrides string) (StatusPolicy, error) {
	out := make(StatusPolicy, len(base))
	for id, s := range base {
		out[id] = s
	}

	for _, pair := range strings.Split(overrides, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idStr, target, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("status override %q: expected id=status", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("status override %q: invalid status id", pair)
		}
		target = strings.ToLower(strings.TrimSpace(target))
		if target == "exclude" {
			delete(out, StatusID(id))
			continue
		}
		st, ok := ParseStatus(target)
		if !ok {
			return nil, fmt.Errorf("status override %q: unknown status %q", pair, target)
		}
		out[StatusID(id)] = st
	}

	return out, nil
}

// String renders the policy as sorted "id=status" pairs.
func (p StatusPolicy) String() string {
	ids := make([]int, 0, len(p))
	for id := range p {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d=%s", id, p[StatusID(id)]))
	}
	return strings.Join(parts, ",")
}
