package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jzx17/photobatch/pkg/worker"
)

// Output formats accepted by the render functions
const (
	FormatTable    = "table"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

// ValidFormat reports whether format is one the renderers understand
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", FormatTable, FormatCSV, FormatMarkdown, "markdown", FormatHTML:
		return true
	default:
		return false
	}
}

func render(t table.Writer, format string) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "markdown":
		t.RenderMarkdown()
	case FormatCSV:
		t.RenderCSV()
	case FormatHTML:
		t.RenderHTML()
	default:
		t.Render()
	}
}

// RenderTiming writes the static run's timing breakdown to w
func RenderTiming(w io.Writer, timing Timing, format string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("execution times")
	t.AppendHeader(table.Row{"phase", "images", "seconds"})
	t.AppendRow(table.Row{"total", "", FormatDuration(timing.Total)})
	t.AppendRow(table.Row{"parallel", "", FormatDuration(timing.Parallel)})
	t.AppendRow(table.Row{"non-parallel", "", FormatDuration(timing.NonParallel)})
	t.AppendSeparator()
	for _, rec := range timing.Workers {
		t.AppendRow(table.Row{
			fmt.Sprintf("worker %d", rec.ID),
			fmt.Sprintf("%d", rec.Processed+rec.Failed),
			FormatDuration(rec.Elapsed()),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	render(t, format)
}

// RenderWorkers writes one row per queue worker to w
func RenderWorkers(w io.Writer, stats []worker.WorkerStats, format string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"worker", "processed", "failed", "state"})
	for _, ws := range stats {
		t.AppendRow(table.Row{ws.ID, ws.TotalProcessed, ws.TotalFailed, ws.State.String()})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignCenter},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignCenter},
	})
	t.SortBy([]table.SortBy{
		{
			Name: "worker",
			Mode: table.AscNumeric,
		},
	})
	render(t, format)
}

// FormatStats renders the aggregate the way STAT prints it
func FormatStats(snap worker.StatsSnapshot) string {
	avg, ok := snap.Average()
	if !ok {
		return "0 images - 0.00s average time"
	}
	return fmt.Sprintf("total images processed: %d\naverage processing time: %.2fs", snap.Count, avg.Seconds())
}
