package reporting

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sot/testr/types"
)

// ScriptTable builds the script-level results table, one row per script in
// execution order with a TOTAL footer. Colored tables are styled by the
// overall result.
func ScriptTable(report *types.RunReport, colored bool) table.Writer {
	t := table.NewWriter()
	t.SetTitle("Test Results")
	t.AppendHeader(table.Row{"Package", "Script", "Status", "Duration", "Reason"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Package", AutoMerge: true},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Reason", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	var total time.Duration
	for _, s := range report.Scripts {
		total += s.Duration
		t.AppendRow(table.Row{
			s.Package,
			s.File,
			StatusString(s.Status),
			FormatDuration(s.Duration),
			s.Reason,
		})
	}

	// Collect-only reports carry no run status
	status := report.RunInfo.Status

	stats := report.Stats()
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d scripts", len(report.Scripts)),
		StatusString(status),
		FormatDuration(total),
		fmt.Sprintf("%d passed, %d failed, %d skipped", stats.Passed, stats.Failed, stats.Skipped),
	})

	switch {
	case !colored:
		t.SetStyle(table.StyleLight)
	case status == types.TestStatusFail:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case status == types.TestStatusNotRun:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	return t
}

// StatusString returns a short marker plus the status name
func StatusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusNotRun:
		return "  ----"
	default:
		return "✗ fail"
	}
}

// FormatDuration formats a duration in seconds with 1 decimal place
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
