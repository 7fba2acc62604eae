package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

func renderJSON(w io.Writer, ds *model.Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds)
}

// renderTable prints the builds, the platform rollup and, when ranked, the
// top failing sections of each platform.
func renderTable(w io.Writer, ds *model.Dataset, top int) error {
	fmt.Fprintf(w, "Milestone %s (%s), session %s\n\n", ds.Milestone.Name, ds.Condition, ds.SessionID)

	builds := newTable(w)
	builds.SetTitle("Builds")
	builds.AppendHeader(table.Row{"Build", "Date", "Platform", "Device", "Total", "Pass %", "Fail %", "Error %", "Blocked %", "Skip %", "Status"})
	for _, r := range ds.Runs {
		row := table.Row{r.Run.Name, buildDate(r), r.Run.Platform.String(), r.Run.DeviceType}
		if r.Stats == nil {
			row = append(row, "-", "-", "-", "-", "-", "-")
		} else {
			row = append(row, r.Stats.Total())
			row = append(row, percentCells(r.Stats.Percentages)...)
		}
		builds.AppendRow(append(row, annotation(r)))
	}
	builds.Render()

	if len(ds.Platforms) == 0 {
		return nil
	}
	fmt.Fprintln(w)

	platforms := newTable(w)
	platforms.SetTitle("Platforms")
	platforms.AppendHeader(table.Row{"Platform", "Device", "Builds", "Total", "Pass %", "Fail %", "Error %", "Blocked %", "Skip %", "Detail"})
	for _, p := range ds.Platforms {
		row := table.Row{p.Scope.Platform.String(), p.Scope.DeviceType, p.Runs, p.Total()}
		row = append(row, percentCells(p.Percentages)...)
		platforms.AppendRow(append(row, p.Detail))
	}
	platforms.Render()

	if !ds.Sections {
		return nil
	}
	for _, p := range ds.Platforms {
		fmt.Fprintln(w)
		if err := p.SectionsErr(); err != nil {
			fmt.Fprintf(w, "%s %s: section ranking unavailable, only summary data for some builds\n", p.Scope.Platform, p.Scope.DeviceType)
		}
		if len(p.Sections) == 0 {
			continue
		}
		sections := newTable(w)
		sections.SetTitle("Failing sections: %s %s", p.Scope.Platform, p.Scope.DeviceType)
		sections.AppendHeader(table.Row{"#", "Section", "Failures"})
		for i, s := range p.Sections {
			if top > 0 && i >= top {
				break
			}
			sections.AppendRow(table.Row{i + 1, s.Section, s.Failures})
		}
		sections.Render()
	}
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Total", Align: text.AlignRight},
		{Name: "Builds", Align: text.AlignRight},
		{Name: "Failures", Align: text.AlignRight},
	})
	return t
}

func percentCells(p model.StatusPercentages) []any {
	return []any{
		fmt.Sprintf("%.1f", p.Pass),
		fmt.Sprintf("%.1f", p.Fail),
		fmt.Sprintf("%.1f", p.Error),
		fmt.Sprintf("%.1f", p.Blocked),
		fmt.Sprintf("%.1f", p.Skip),
	}
}

func buildDate(r model.RunReport) string {
	if r.Stats != nil && !r.Stats.BuildDate.IsZero() {
		return r.Stats.BuildDate.Format("2006-01-02")
	}
	if !r.Run.CreatedOn.IsZero() {
		return r.Run.CreatedOn.UTC().Format("2006-01-02")
	}
	return "-"
}

func annotation(r model.RunReport) string {
	var b strings.Builder
	b.WriteString(string(r.Annotation))
	if r.CacheHit {
		b.WriteString(" (cached)")
	}
	if r.Annotation != model.AnnotationOK && r.Reason != "" {
		b.WriteString(": ")
		b.WriteString(r.Reason)
	}
	return b.String()
}
