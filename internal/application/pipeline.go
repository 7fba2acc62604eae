package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
	"github.com/ericfisherdev/railpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

// DefaultBuildCount is the number of builds analyzed when a request leaves it unset.
const DefaultBuildCount = 5

// Request describes one analysis.
type Request struct {
	ProjectID     int64
	Milestone     string
	BuildCount    int
	FetchSections bool
	SummaryOnly   bool
	// UseCache allows cached stats to be served. Fresh stats are written back
	// either way.
	UseCache bool
}

// PipelineOptions bounds the work done per analysis.
type PipelineOptions struct {
	Workers            int
	MaxCandidateRuns   int
	MaxDetailedResults int
}

// Pipeline resolves a milestone, selects its most recent builds and turns each
// into AggregatedStats, reading and writing the cache along the way.
type Pipeline struct {
	client     driven.TestRailClient
	cache      driven.CacheStore
	aggregator *Aggregator
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	opts       PipelineOptions
}

// NewPipeline creates a Pipeline. cache and metrics may be nil.
func NewPipeline(
	client driven.TestRailClient,
	cache driven.CacheStore,
	aggregator *Aggregator,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
	opts PipelineOptions,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if aggregator == nil {
		aggregator = NewAggregator(nil, logger)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Pipeline{
		client:     client,
		cache:      cache,
		aggregator: aggregator,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// session is the per-invocation state shared by the workers of one Run.
type session struct {
	id        string
	req       Request
	milestone model.Milestone
	logger    *slog.Logger

	sf       singleflight.Group
	mu       sync.Mutex
	sections map[int64]map[int64]string // suite ID -> section ID -> path
}

// Run executes one analysis. The returned dataset is never nil; its State and
// Condition describe how far the analysis got. A non-nil error accompanies
// the milestone_not_found and failed states, total authentication failure
// and cancellation.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.Dataset, error) {
	if req.BuildCount <= 0 {
		req.BuildCount = DefaultBuildCount
	}

	ds := &model.Dataset{
		SessionID: uuid.NewString(),
		Milestone: model.Milestone{Name: req.Milestone},
		Runs:      []model.RunReport{},
		Platforms: []model.AggregatedStats{},
		Sections:  req.FetchSections,
	}
	s := &session{
		id:       ds.SessionID,
		req:      req,
		logger:   p.logger.With("session_id", ds.SessionID, "milestone", req.Milestone),
		sections: make(map[int64]map[int64]string),
	}

	p.setState(s, ds, model.StateResolvingMilestone)
	ms, err := p.client.FindMilestone(ctx, req.ProjectID, req.Milestone)
	if err != nil {
		state := model.StateFailed
		if model.IsNotFound(err) {
			state = model.StateMilestoneNotFound
		}
		p.finish(s, ds, state)
		return ds, fmt.Errorf("resolving milestone %q: %w", req.Milestone, err)
	}
	ds.Milestone = *ms
	s.milestone = *ms

	p.setState(s, ds, model.StateListingRuns)
	candidates, err := p.client.ListRuns(ctx, req.ProjectID, *ms, p.opts.MaxCandidateRuns)
	if err != nil {
		p.finish(s, ds, model.StateFailed)
		return ds, fmt.Errorf("listing runs for %q: %w", ms.Name, err)
	}

	selected := SelectRecent(qualifyingRuns(candidates, ms.Name), req.BuildCount)
	s.logger.Info("runs selected",
		"candidates", len(candidates),
		"selected", len(selected),
		"build_count", req.BuildCount,
	)
	if len(selected) == 0 {
		p.finish(s, ds, model.StateNoQualifyingRuns)
		return ds, nil
	}

	p.setState(s, ds, model.StateProcessing)
	ds.Runs = p.processRuns(ctx, s, selected)

	var stats []model.AggregatedStats
	for _, r := range ds.Successful() {
		if r.Stats != nil {
			stats = append(stats, *r.Stats)
		}
	}
	ds.Platforms = RollupByPlatform(stats)

	if ae := totalAuthFailure(ds.Runs); ae != nil {
		p.finish(s, ds, model.StateFailed)
		return ds, fmt.Errorf("every run failed authentication: %w", ae)
	}

	p.finish(s, ds, model.StateDone)
	if err := ctx.Err(); err != nil {
		return ds, fmt.Errorf("analysis of %q interrupted: %w", ms.Name, err)
	}
	return ds, nil
}

func (p *Pipeline) setState(s *session, ds *model.Dataset, state model.PipelineState) {
	ds.State = state
	s.logger.Debug("pipeline state changed", "state", state)
}

func (p *Pipeline) finish(s *session, ds *model.Dataset, state model.PipelineState) {
	ds.State = state
	ds.Condition = ds.Evaluate()
	p.metrics.ObservePipeline(string(state))
	s.logger.Info("analysis finished",
		"state", state,
		"condition", ds.Condition,
		"runs", len(ds.Runs),
		"platforms", len(ds.Platforms),
	)
}

// qualifyingRuns keeps the runs named as builds of milestone, either directly
// or through the build sub-milestone they hang off, and tags their platform.
func qualifyingRuns(runs []model.Run, milestone string) []model.Run {
	out := make([]model.Run, 0, len(runs))
	for _, r := range runs {
		if !BelongsToMilestone(r.Name, milestone) &&
			(r.MilestoneName == "" || !BelongsToMilestone(r.MilestoneName, milestone)) {
			continue
		}
		r.Platform = ExtractPlatform(r.Name)
		r.DeviceType = ExtractDeviceType(r.Name)
		out = append(out, r)
	}
	return out
}

// buildKey names the cache entry of a run. Runs filed under a build
// sub-milestone carry generic names that repeat in every build, so the
// sub-milestone name qualifies them.
func buildKey(milestone string, run model.Run) string {
	if run.MilestoneName == "" || strings.EqualFold(run.MilestoneName, milestone) {
		return run.Name
	}
	return run.MilestoneName + "/" + run.Name
}

// processRuns fans the selected runs out to a bounded worker pool. A failing
// run never stops its siblings. Runs not started before ctx is done are
// reported as partially failed. Reports keep the order of runs.
func (p *Pipeline) processRuns(ctx context.Context, s *session, runs []model.Run) []model.RunReport {
	reports := make([]model.RunReport, len(runs))
	started := make([]bool, len(runs))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, run := range runs {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			reports[i] = p.processRun(ctx, s, run)
			return nil
		})
	}
	_ = g.Wait() // Workers record failures in their report.

	for i := range reports {
		if !started[i] {
			reports[i] = failedReport(runs[i], fmt.Errorf("run %d not processed: %w", runs[i].ID, context.Cause(ctx)))
		}
		p.metrics.ObserveRun(string(reports[i].Annotation))
	}
	return reports
}

func (p *Pipeline) processRun(ctx context.Context, s *session, run model.Run) model.RunReport {
	log := s.logger.With("run_id", run.ID, "run", run.Name)

	if err := ctx.Err(); err != nil {
		return failedReport(run, fmt.Errorf("run %d not processed: %w", run.ID, context.Cause(ctx)))
	}

	key := buildKey(s.milestone.Name, run)
	if s.req.UseCache && p.cache != nil {
		if cached, ok := p.cache.Get(ctx, s.milestone.Name, key); ok {
			if stats, usable := fitCached(*cached, run, s.req.FetchSections); usable {
				log.Debug("cache hit")
				rep := statsReport(run, &stats, "")
				rep.CacheHit = true
				return rep
			}
			log.Debug("cached entry does not fit the request, refetching", "cached_run_id", cached.Scope.RunID)
		}
	}

	results, err := p.fetchResults(ctx, run, s.req.SummaryOnly)
	if err != nil {
		log.Warn("fetching results failed", "error", err)
		return failedReport(run, err)
	}

	var paths map[int64]string
	if s.req.FetchSections && results.Shape == model.ShapeDetailed {
		paths, err = p.resolveSections(ctx, s, run, results.Results)
		if err != nil {
			log.Warn("resolving sections failed", "error", err)
			return failedReport(run, err)
		}
	}

	stats := p.aggregator.Aggregate(AggregateInput{
		Milestone:    s.milestone.Name,
		Run:          run,
		Results:      results,
		SectionPaths: paths,
		WithSections: s.req.FetchSections,
	})

	if p.cache != nil && !s.req.SummaryOnly {
		if err := p.cache.Put(ctx, s.milestone.Name, key, stats); err != nil {
			log.Warn("cache write failed", "error", err)
			p.metrics.IncCacheWriteFailure()
		}
	}

	log.Debug("run aggregated", "detail", stats.Detail, "total", stats.Total())
	return statsReport(run, &stats, results.Reason)
}

// fetchResults returns the run's detailed results unless summary data was
// requested or the run is too large for a detailed fetch.
func (p *Pipeline) fetchResults(ctx context.Context, run model.Run, summaryOnly bool) (model.RunResults, error) {
	if summaryOnly {
		return model.SummaryResults(run.Summary, "summary requested"), nil
	}
	if limit := p.opts.MaxDetailedResults; limit > 0 && run.Summary.Executed() > limit {
		return model.SummaryResults(run.Summary,
			fmt.Sprintf("%d executed results exceed the detail limit of %d", run.Summary.Executed(), limit)), nil
	}
	return p.client.ListResults(ctx, run)
}

// resolveSections fills in the SectionID of every result and returns the
// section paths of the run's suite.
func (p *Pipeline) resolveSections(ctx context.Context, s *session, run model.Run, results []model.TestResult) (map[int64]string, error) {
	paths, err := p.suiteSections(ctx, s, run.SuiteID)
	if err != nil {
		return nil, err
	}
	testSections, err := p.client.ListTestSections(ctx, s.req.ProjectID, run)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if sid, ok := testSections[results[i].TestID]; ok {
			results[i].SectionID = sid
		}
	}
	return paths, nil
}

// suiteSections fetches a suite's section paths at most once per session,
// however many workers ask for it concurrently.
func (p *Pipeline) suiteSections(ctx context.Context, s *session, suiteID int64) (map[int64]string, error) {
	s.mu.Lock()
	paths, ok := s.sections[suiteID]
	s.mu.Unlock()
	if ok {
		return paths, nil
	}

	v, err, _ := s.sf.Do(fmt.Sprint(suiteID), func() (any, error) {
		s.mu.Lock()
		paths, ok := s.sections[suiteID]
		s.mu.Unlock()
		if ok {
			return paths, nil
		}
		paths, err := p.client.ListSections(ctx, s.req.ProjectID, suiteID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.sections[suiteID] = paths
		s.mu.Unlock()
		return paths, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int64]string), nil
}

// fitCached adapts cached stats to the request. Stats recorded for another run
// never fit, and stats cached without a section ranking cannot serve a
// request for one.
func fitCached(stats model.AggregatedStats, run model.Run, withSections bool) (model.AggregatedStats, bool) {
	if stats.Scope.RunID != run.ID {
		return stats, false
	}
	stats.Scope.RunName = run.Name
	if !withSections {
		stats.SectionStatus = model.SectionsNotRequested
		stats.Sections = nil
		return stats, true
	}
	return stats, stats.SectionStatus != model.SectionsNotRequested
}

func statsReport(run model.Run, stats *model.AggregatedStats, reason string) model.RunReport {
	rep := model.RunReport{Run: run, Annotation: model.AnnotationOK, Stats: stats}
	if stats.Detail == model.ShapeSummary {
		rep.Annotation = model.AnnotationSummaryOnly
		rep.Reason = reason
		if rep.Reason == "" {
			rep.Reason = "only summary data available"
		}
	}
	return rep
}

func failedReport(run model.Run, err error) model.RunReport {
	return model.RunReport{
		Run:        run,
		Annotation: model.AnnotationPartiallyFailed,
		Reason:     err.Error(),
		Err:        err,
	}
}

// totalAuthFailure returns the first AuthError when every run failed with
// one, and nil otherwise.
func totalAuthFailure(reports []model.RunReport) *model.AuthError {
	var first *model.AuthError
	for _, r := range reports {
		var ae *model.AuthError
		if !r.Failed() || !errors.As(r.Err, &ae) {
			return nil
		}
		if first == nil {
			first = ae
		}
	}
	return first
}

// WithClient returns a copy of p that talks to TestRail through client.
func (p *Pipeline) WithClient(client driven.TestRailClient) *Pipeline {
	cp := *p
	cp.client = client
	return &cp
}
