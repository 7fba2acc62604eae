package driven

import (
	"context"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// CacheStore defines the driven port for per-build aggregated stats. Entries
// are keyed by (milestone, build name) and never expire: a completed build is
// immutable upstream.
type CacheStore interface {
	// Get returns the stored stats, or false on a miss. Unreadable entries are
	// reported as misses.
	Get(ctx context.Context, milestone, build string) (*model.AggregatedStats, bool)
	// Put stores stats for the key, replacing any previous entry atomically.
	Put(ctx context.Context, milestone, build string, stats model.AggregatedStats) error
}
