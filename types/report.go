package types

import (
	"time"
)

// TimestampLayout is the layout used for every timestamp in the summary log
const TimestampLayout = "2006:01:02T15:04:05"

// FormatTimestamp renders t in TimestampLayout, or "" for the zero time
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

// Outcome holds the message and captured output attached to a failed or skipped case
type Outcome struct {
	Message string `json:"message"`
	Output  string `json:"output"`
}

// TestCase is a fine-grained result, either synthesized from a script or parsed
// from a structured report the script produced.
type TestCase struct {
	Name      string     `json:"name"`
	Classname string     `json:"classname,omitempty"`
	File      string     `json:"file,omitempty"`
	Line      *int       `json:"line,omitempty"`
	Status    TestStatus `json:"status,omitempty"`
	Failure   *Outcome   `json:"failure,omitempty"`
	Skipped   *Outcome   `json:"skipped,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
	Time      float64    `json:"time,omitempty"`
	Log       string     `json:"log,omitempty"`
	Stdout    string     `json:"stdout,omitempty"`
}

// Properties describe the environment a suite ran in
type Properties struct {
	System         string `json:"system"`
	Architecture   string `json:"architecture"`
	Hostname       string `json:"hostname"`
	Platform       string `json:"platform"`
	Package        string `json:"package"`
	PackageVersion string `json:"package_version"`
	TStart         string `json:"t_start"`
	TStop          string `json:"t_stop"`
	RegressDir     string `json:"regress_dir"`
	OutDir         string `json:"out_dir"`
}

// TestSuite groups test cases, either per package for framework-run scripts or
// the top-level suite of synthesized script cases.
type TestSuite struct {
	Name       string     `json:"name"`
	Package    string     `json:"package"`
	TestCases  []TestCase `json:"test_cases"`
	Timestamp  string     `json:"timestamp"`
	Properties Properties `json:"properties"`

	// Only set for framework suites
	Log      string `json:"log,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	File     string `json:"file,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
}

// Status rolls up the suite: fail iff any case failed
func (s *TestSuite) Status() TestStatus {
	for _, tc := range s.TestCases {
		if tc.Status == TestStatusFail {
			return TestStatusFail
		}
	}
	return TestStatusPass
}

// Stats counts the suite's cases by status
func (s *TestSuite) Stats() ResultStats {
	var stats ResultStats
	for _, tc := range s.TestCases {
		stats.add(tc.Status)
	}
	return stats
}

// ResultStats tracks test case counts
type ResultStats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	NotRun  int `json:"not_run"`
}

func (s *ResultStats) add(status TestStatus) {
	s.Total++
	switch status {
	case TestStatusPass:
		s.Passed++
	case TestStatusFail:
		s.Failed++
	case TestStatusSkip:
		s.Skipped++
	default:
		s.NotRun++
	}
}

// Merge adds other into s
func (s *ResultStats) Merge(other ResultStats) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.NotRun += other.NotRun
}

// RunInfo describes the invocation that produced a report
type RunInfo struct {
	Date      string      `json:"date"`
	Argv      []string    `json:"argv"`
	RunID     string      `json:"run_id"`
	VersionID string      `json:"version_id"`
	TestSpec  string      `json:"test_spec"`
	TStart    string      `json:"t_start,omitempty"`
	TStop     string      `json:"t_stop,omitempty"`
	Status    TestStatus  `json:"status,omitempty"`
	Stats     ResultStats `json:"stats"`
}

// ScriptSummary is the script-level outcome used by the console table
type ScriptSummary struct {
	Package  string
	File     string
	Status   TestStatus
	Duration time.Duration
	ExitCode int
	Reason   string
}

// RunReport is the full aggregation for one invocation
type RunReport struct {
	RunInfo    RunInfo     `json:"run_info"`
	TestSuite  TestSuite   `json:"test_suite"`
	TestSuites []TestSuite `json:"test_suites"`

	// Scripts lists script-level outcomes in execution order
	Scripts []ScriptSummary `json:"-"`
}

// Suites returns the top-level suite followed by the package suites
func (r *RunReport) Suites() []*TestSuite {
	suites := make([]*TestSuite, 0, len(r.TestSuites)+1)
	suites = append(suites, &r.TestSuite)
	for i := range r.TestSuites {
		suites = append(suites, &r.TestSuites[i])
	}
	return suites
}

// Status is fail iff any suite failed
func (r *RunReport) Status() TestStatus {
	for _, s := range r.Suites() {
		if s.Status() == TestStatusFail {
			return TestStatusFail
		}
	}
	return TestStatusPass
}

// Stats returns case counts across all suites
func (r *RunReport) Stats() ResultStats {
	var stats ResultStats
	for _, s := range r.Suites() {
		stats.Merge(s.Stats())
	}
	return stats
}

// Failed reports whether the run must exit non-zero
func (r *RunReport) Failed() bool {
	return r.Status() == TestStatusFail
}

// SystemInfo identifies the host a run executed on
type SystemInfo struct {
	System       string `json:"system"`
	Architecture string `json:"architecture"`
	Hostname     string `json:"hostname"`
	Platform     string `json:"platform"`
}
