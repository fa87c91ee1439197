package testr

import (
	"time"

	"github.com/sot/testr/metrics"
	"github.com/sot/testr/types"
)

// MetricsReporter is responsible for reporting metrics from test results.
type MetricsReporter interface {
	ReportResults(report *types.RunReport, duration time.Duration) error
}

// DefaultMetricsReporter implements the MetricsReporter interface. When
// textfile is set the registry is also written there after each run.
type DefaultMetricsReporter struct {
	textfile string
}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter(textfile string) *DefaultMetricsReporter {
	return &DefaultMetricsReporter{textfile: textfile}
}

// ReportResults reports the test results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(report *types.RunReport, duration time.Duration) error {
	metrics.RecordRun(
		report.RunInfo.VersionID,
		report.RunInfo.Status,
		report.RunInfo.Stats,
		duration,
	)
	if r.textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(r.textfile)
}
