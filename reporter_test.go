package testr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sot/testr/types"
)

// TestDefaultMetricsReporter_ReportResults tests the metrics reporter without a textfile
func TestDefaultMetricsReporter_ReportResults(t *testing.T) {
	reporter := NewDefaultMetricsReporter("")
	assert.NoError(t, reporter.ReportResults(createSampleReport(), 100*time.Millisecond))
}

// TestDefaultMetricsReporter_ReportResults_Textfile tests exporting the run metrics
func TestDefaultMetricsReporter_ReportResults_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testr.prom")
	report := createSampleReport()
	report.RunInfo.VersionID = "reporter-test"

	require.NoError(t, NewDefaultMetricsReporter(path).ReportResults(report, 2*time.Second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `testr_run_result{result="fail",version_id="reporter-test"} 1`)
	assert.Contains(t, text, `testr_run_duration_seconds{version_id="reporter-test"} 2`)
}

// TestDefaultMetricsReporter_ReportResults_BadPath tests that export failures are returned
func TestDefaultMetricsReporter_ReportResults_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "testr.prom")
	err := NewDefaultMetricsReporter(path).ReportResults(&types.RunReport{}, 0)
	assert.Error(t, err)
}
