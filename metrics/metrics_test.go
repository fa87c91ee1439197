package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sot/testr/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordScript(t *testing.T) {
	RecordScript("pkg_metrics", "test", types.TestStatusFail, time.Second)
	RecordScript("pkg_metrics", "test", types.TestStatusNotRun, time.Second)

	path := filepath.Join(t.TempDir(), "testr.prom")
	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `testr_scripts_total{kind="test",package="pkg_metrics",result="fail"} 1`)
	assert.NotContains(t, string(data), `package="pkg_metrics",result=""`)
	assert.Contains(t, string(data), `testr_script_duration_seconds{kind="test",package="pkg_metrics"} 1`)
}

func TestRecordRunAndWriteTextfile(t *testing.T) {
	RecordRun("linux_2024-01-01T00-00-00_test_host", types.TestStatusFail,
		types.ResultStats{Total: 3, Passed: 2, Failed: 1}, 2*time.Second)

	path := filepath.Join(t.TempDir(), "testr.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "testr_run_duration_seconds")
	assert.Contains(t, string(data), `testr_run_test_cases{result="pass",version_id="linux_2024-01-01T00-00-00_test_host"} 2`)
}
