package types

import (
	"time"
)

// TestStatus represents the possible states of a test or script execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skipped"
	// TestStatusNotRun marks entries that were collected but never executed
	TestStatusNotRun TestStatus = ""
)

// ExecutionResult captures the outcome of running one ScriptEntry
type ExecutionResult struct {
	Script     ScriptEntry
	ExitCode   int
	Start      time.Time
	Stop       time.Time
	LogFile    string // absolute path of <file>.log
	OutDir     string // directory the script ran in
	RegressDir string
	Status     TestStatus

	// Package version reported by the version resolver, "unknown" if not resolvable
	PackageVersion string

	// Error describes why the script did not complete normally (start failure, timeout)
	Error error
	// SkipReason is set when a skip rule prevented the script from running
	SkipReason string
	TimedOut   bool

	// OutputTail holds the last bytes of the script's combined output
	OutputTail string
}

// Duration returns the wall-clock time the script took
func (r *ExecutionResult) Duration() time.Duration {
	if r.Start.IsZero() || r.Stop.IsZero() {
		return 0
	}
	return r.Stop.Sub(r.Start)
}

// StatusFromExitCode classifies an exit status. There is no partial success.
func StatusFromExitCode(code int) TestStatus {
	if code == 0 {
		return TestStatusPass
	}
	return TestStatusFail
}
