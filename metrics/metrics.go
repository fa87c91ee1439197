package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sot/testr/types"
)

const (
	MetricsNamespace = "testr"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scriptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scripts_total",
		Help:      "Count of executed scripts",
	}, []string{
		"package",
		"kind",
		"result",
	})

	scriptDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "script_duration_seconds",
		Help:      "Wall-clock duration of the last execution of a script",
	}, []string{
		"package",
		"kind",
	})

	runResult = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Overall result of a run",
	}, []string{
		"version_id",
		"result",
	})

	runTestCases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_cases",
		Help:      "Number of test cases in a run by result",
	}, []string{
		"version_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a run",
	}, []string{
		"version_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordScript counts one executed (or skipped) script
func RecordScript(pkg string, kind string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordScript - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "scripts_total",
			"package", pkg,
			"kind", kind,
			"result", result)
	}
	scriptsTotal.WithLabelValues(pkg, kind, string(result)).Inc()
	if result != types.TestStatusSkip {
		scriptDuration.WithLabelValues(pkg, kind).Set(duration.Seconds())
	}
}

// RecordRun publishes the outcome of a complete run
func RecordRun(versionID string, result types.TestStatus, stats types.ResultStats, duration time.Duration) {
	runResult.WithLabelValues(versionID, string(result)).Set(1)
	runTestCases.WithLabelValues(versionID, string(types.TestStatusPass)).Set(float64(stats.Passed))
	runTestCases.WithLabelValues(versionID, string(types.TestStatusFail)).Set(float64(stats.Failed))
	runTestCases.WithLabelValues(versionID, string(types.TestStatusSkip)).Set(float64(stats.Skipped))
	runDuration.WithLabelValues(versionID).Set(duration.Seconds())
}

// WriteTextfile writes every registered metric to path in the Prometheus text
// format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
