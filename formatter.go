package testr

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/sot/testr/reporting"
	"github.com/sot/testr/types"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(report *types.RunReport) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger  log.Logger
	out     io.Writer
	colored bool
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer, colored bool) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger:  logger,
		out:     out,
		colored: colored,
	}
}

// FormatResults prints the script table followed by a one-line summary.
func (f *ConsoleResultFormatter) FormatResults(report *types.RunReport) error {
	f.logger.Info("Printing results...")
	t := reporting.ScriptTable(report, f.colored)
	t.SetOutputMirror(f.out)
	t.Render()

	if _, err := fmt.Fprintln(f.out, summaryLine(report)); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// summaryLine describes the run in one line
func summaryLine(report *types.RunReport) string {
	stats := report.RunInfo.Stats
	status := report.RunInfo.Status
	if status == types.TestStatusNotRun {
		return fmt.Sprintf("Collected %d scripts", len(report.Scripts))
	}
	return fmt.Sprintf("Run %s: %s (%d test cases: %d passed, %d failed, %d skipped)",
		report.RunInfo.VersionID, status, stats.Total, stats.Passed, stats.Failed, stats.Skipped)
}
