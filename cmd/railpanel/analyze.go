package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/railpanel/internal/application"
)

var analyzeFlags struct {
	milestone   string
	projectID   int64
	builds      int
	sections    bool
	summaryOnly bool
	noCache     bool
	format      string
	top         int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the most recent builds of a milestone",
	Long: `Analyze resolves the milestone, selects its most recent builds and prints
per-build and per-platform status figures.

  railpanel analyze --milestone switch-18
  railpanel analyze --milestone switch-18 --builds 3 --sections
  railpanel analyze --milestone trunk --format json > trunk.json

Cached builds are reused unless --no-cache is given; freshly fetched builds
are always written back. Delete the cache directory to invalidate it.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.milestone, "milestone", "m", "", "Release milestone name (default: $RAILPANEL_MILESTONE)")
	f.Int64Var(&analyzeFlags.projectID, "project", 0, "TestRail project ID (default: $RAILPANEL_PROJECT_ID)")
	f.IntVarP(&analyzeFlags.builds, "builds", "n", 0, "Number of recent builds (default: $RAILPANEL_BUILD_COUNT)")
	f.BoolVar(&analyzeFlags.sections, "sections", false, "Rank the sections failures fall in")
	f.BoolVar(&analyzeFlags.summaryOnly, "summary-only", false, "Use run summary counts only; skips per-test results")
	f.BoolVar(&analyzeFlags.noCache, "no-cache", false, "Ignore cached builds")
	f.StringVarP(&analyzeFlags.format, "format", "f", "table", "Output format: table or json")
	f.IntVar(&analyzeFlags.top, "top", 10, "Sections listed per platform in table output")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	if analyzeFlags.format != "table" && analyzeFlags.format != "json" {
		return fmt.Errorf("--format must be table or json, got %q", analyzeFlags.format)
	}
	milestone := analyzeFlags.milestone
	if milestone == "" {
		milestone = cfg.Milestone
	}
	if milestone == "" {
		return errors.New("--milestone is required")
	}
	if !cfg.HasTestRailCredentials() {
		return errors.New("RAILPANEL_TESTRAIL_URL, RAILPANEL_TESTRAIL_USERNAME and RAILPANEL_TESTRAIL_API_KEY must be set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	cache, closeCache, err := openCache(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			logger.Error("error closing cache", "error", err)
		}
	}()

	client, err := clientFactory(cfg, logger, nil)(defaultConnection(cfg))
	if err != nil {
		return err
	}

	req := application.Request{
		ProjectID:     cfg.ProjectID,
		Milestone:     milestone,
		BuildCount:    cfg.BuildCount,
		FetchSections: analyzeFlags.sections,
		SummaryOnly:   analyzeFlags.summaryOnly,
		UseCache:      !analyzeFlags.noCache,
	}
	if analyzeFlags.projectID > 0 {
		req.ProjectID = analyzeFlags.projectID
	}
	if analyzeFlags.builds > 0 {
		req.BuildCount = analyzeFlags.builds
	}

	ds, runErr := newPipeline(cfg, client, cache, logger, nil).Run(ctx, req)
	if ds != nil && len(ds.Runs) > 0 {
		out := cmd.OutOrStdout()
		var renderErr error
		if analyzeFlags.format == "json" {
			renderErr = renderJSON(out, ds)
		} else {
			renderErr = renderTable(out, ds, analyzeFlags.top)
		}
		if renderErr != nil {
			return renderErr
		}
	} else if ds != nil && runErr == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No builds of %q found (%s).\n", milestone, ds.Condition)
	}
	return runErr
}
