package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/sot/testr/types"
)

// TopSuiteName names the suite holding synthesized per-script cases
const TopSuiteName = "testr"

// AggregatorConfig configures an Aggregator
type AggregatorConfig struct {
	// OutputsDir is the run's outputs subdirectory; report paths below it are
	// written relative to it.
	OutputsDir string
	System     types.SystemInfo
	Formats    []ReportFormat
	// IncludeStdout embeds each script's log text in the report
	IncludeStdout bool
	Log           log.Logger
}

// Aggregator builds a RunReport from execution results. It reads the files
// scripts left behind but never consults the clock, so the same inputs always
// produce the same report.
type Aggregator struct {
	outputsDir    string
	system        types.SystemInfo
	formats       []ReportFormat
	includeStdout bool
	log           log.Logger
}

// NewAggregator creates an Aggregator
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Formats == nil {
		cfg.Formats = DefaultFormats()
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &Aggregator{
		outputsDir:    cfg.OutputsDir,
		system:        cfg.System,
		formats:       cfg.Formats,
		includeStdout: cfg.IncludeStdout,
		log:           cfg.Log,
	}
}

// reportBuilder accumulates one report
type reportBuilder struct {
	report   *types.RunReport
	pkgIndex map[string]int
}

// Aggregate builds the report for results given in execution order. info
// supplies the invocation details; its status, totals and time span are
// filled in from the results.
func (a *Aggregator) Aggregate(info types.RunInfo, results []*types.ExecutionResult) *types.RunReport {
	b := &reportBuilder{
		report: &types.RunReport{
			RunInfo:    withArgv(info),
			TestSuite:  a.topSuite(),
			TestSuites: []types.TestSuite{},
		},
		pkgIndex: make(map[string]int),
	}

	for _, result := range results {
		summary := a.addResult(b, result)
		b.report.Scripts = append(b.report.Scripts, summary)
	}

	a.finishTopSuite(&b.report.TestSuite, results)
	b.report.RunInfo.TStart, b.report.RunInfo.TStop = span(results)
	b.report.RunInfo.Status = b.report.Status()
	b.report.RunInfo.Stats = b.report.Stats()
	return b.report
}

// Collected builds the report of a collect-only run: one placeholder case per
// selected script, without status.
func (a *Aggregator) Collected(info types.RunInfo, entries []types.ScriptEntry) *types.RunReport {
	report := &types.RunReport{
		RunInfo:    withArgv(info),
		TestSuite:  a.topSuite(),
		TestSuites: []types.TestSuite{},
	}
	for _, e := range entries {
		report.TestSuite.TestCases = append(report.TestSuite.TestCases, types.TestCase{
			Name:      e.File,
			Classname: e.Package,
			File:      e.Path(),
		})
		report.Scripts = append(report.Scripts, types.ScriptSummary{
			Package: e.Package,
			File:    e.File,
			Status:  types.TestStatusNotRun,
		})
	}
	report.RunInfo.Stats = report.Stats()
	return report
}

// withArgv makes sure argv is written as a list
func withArgv(info types.RunInfo) types.RunInfo {
	if info.Argv == nil {
		info.Argv = []string{}
	}
	return info
}

func (a *Aggregator) topSuite() types.TestSuite {
	return types.TestSuite{
		Name:       TopSuiteName,
		TestCases:  []types.TestCase{},
		Properties: a.properties(nil),
	}
}

func (a *Aggregator) finishTopSuite(suite *types.TestSuite, results []*types.ExecutionResult) {
	suite.Properties.TStart, suite.Properties.TStop = span(results)
	suite.Timestamp = suite.Properties.TStart
}

func (a *Aggregator) properties(result *types.ExecutionResult) types.Properties {
	props := types.Properties{
		System:       a.system.System,
		Architecture: a.system.Architecture,
		Hostname:     a.system.Hostname,
		Platform:     a.system.Platform,
	}
	if result == nil {
		return props
	}
	props.Package = result.Script.Package
	props.PackageVersion = result.PackageVersion
	props.TStart = types.FormatTimestamp(result.Start)
	props.TStop = types.FormatTimestamp(result.Stop)
	props.RegressDir = a.relPath(result.RegressDir)
	props.OutDir = a.relPath(result.OutDir)
	return props
}

// addResult merges one result into the report and returns its table row
func (a *Aggregator) addResult(b *reportBuilder, result *types.ExecutionResult) types.ScriptSummary {
	summary := types.ScriptSummary{
		Package:  result.Script.Package,
		File:     result.Script.File,
		Status:   result.Status,
		Duration: result.Duration(),
		ExitCode: result.ExitCode,
		Reason:   result.SkipReason,
	}
	if result.Error != nil {
		summary.Reason = result.Error.Error()
	}

	if result.Status == types.TestStatusSkip {
		b.report.TestSuite.TestCases = append(b.report.TestSuite.TestCases, a.scriptCase(result))
		return summary
	}

	format, artifact, ok := DetectArtifact(a.formats, result.OutDir, result.Script)
	if !ok {
		b.report.TestSuite.TestCases = append(b.report.TestSuite.TestCases, a.scriptCase(result))
		return summary
	}

	parsed, err := ParseArtifact(format, artifact)
	if err != nil {
		a.log.Warn("Falling back to script status", "script", result.Script.Path(), "err", err)
		tc := a.scriptCase(result)
		tc.Status = types.TestStatusFail
		tc.Skipped = nil
		tc.Failure = &types.Outcome{
			Message: fmt.Sprintf("%s failed: unreadable %s report", result.Script.File, format.Name()),
			Output:  err.Error(),
		}
		b.report.TestSuite.TestCases = append(b.report.TestSuite.TestCases, tc)
		summary.Status = types.TestStatusFail
		summary.Reason = err.Error()
		return summary
	}

	suite := a.packageSuite(b, result, parsed)
	failed := false
	for _, ps := range parsed {
		for _, tc := range ps.Cases {
			a.fillCase(&tc, result)
			failed = failed || tc.Status == types.TestStatusFail
			suite.TestCases = append(suite.TestCases, tc)
		}
	}

	// The exit status must still fail the run when the report claims success
	if result.Status == types.TestStatusFail && !failed {
		suite.TestCases = append(suite.TestCases, a.scriptCase(result))
		failed = true
	}
	if failed {
		summary.Status = types.TestStatusFail
	}
	return summary
}

// packageSuite returns the framework suite of the result's package, creating
// it from the first framework script of that package.
func (a *Aggregator) packageSuite(b *reportBuilder, result *types.ExecutionResult, parsed []ParsedSuite) *types.TestSuite {
	pkg := result.Script.Package
	if i, ok := b.pkgIndex[pkg]; ok {
		suite := &b.report.TestSuites[i]
		if stop := types.FormatTimestamp(result.Stop); stop != "" {
			suite.Properties.TStop = stop
		}
		return suite
	}

	name := pkg
	if len(parsed) > 0 && parsed[0].Name != "" {
		name = pkg + "-" + parsed[0].Name
	}
	props := a.properties(result)
	suite := types.TestSuite{
		Name:       name,
		Package:    pkg,
		TestCases:  []types.TestCase{},
		Timestamp:  props.TStart,
		Properties: props,
		Log:        a.relPath(result.LogFile),
		Hostname:   a.system.Hostname,
		File:       a.relPath(filepath.Join(result.OutDir, result.Script.File)),
		Stdout:     a.stdout(result),
	}
	b.pkgIndex[pkg] = len(b.report.TestSuites)
	b.report.TestSuites = append(b.report.TestSuites, suite)
	return &b.report.TestSuites[len(b.report.TestSuites)-1]
}

// fillCase completes a parsed case with what the report itself lacks
func (a *Aggregator) fillCase(tc *types.TestCase, result *types.ExecutionResult) {
	if tc.File == "" {
		tc.File = a.relPath(filepath.Join(result.OutDir, result.Script.File))
	}
	if tc.Timestamp == "" {
		tc.Timestamp = types.FormatTimestamp(result.Start)
	}
	if tc.Log == "" {
		tc.Log = a.relPath(result.LogFile)
	}
}

// scriptCase synthesizes the single case that stands for a whole script
func (a *Aggregator) scriptCase(result *types.ExecutionResult) types.TestCase {
	tc := types.TestCase{
		Name:      result.Script.File,
		Classname: result.Script.Package,
		File:      a.relPath(filepath.Join(result.OutDir, result.Script.File)),
		Status:    result.Status,
		Timestamp: types.FormatTimestamp(result.Start),
		Time:      result.Duration().Seconds(),
		Log:       a.relPath(result.LogFile),
		Stdout:    a.stdout(result),
	}
	switch result.Status {
	case types.TestStatusFail:
		tc.Failure = &types.Outcome{
			Message: result.Script.File + " failed",
			Output:  failureOutput(result),
		}
	case types.TestStatusSkip:
		tc.Skipped = &types.Outcome{
			Message: result.Script.File + " skipped",
			Output:  result.SkipReason,
		}
	}
	return tc
}

// failureOutput describes why the script failed, followed by the last of
// its output
func failureOutput(result *types.ExecutionResult) string {
	out := fmt.Sprintf("exit status %d", result.ExitCode)
	if result.Error != nil {
		out = result.Error.Error()
	}
	if tail := strings.TrimRight(result.OutputTail, "\n"); tail != "" {
		out += "\n" + tail
	}
	return out
}

func (a *Aggregator) stdout(result *types.ExecutionResult) string {
	if !a.includeStdout || result.LogFile == "" {
		return ""
	}
	data, err := os.ReadFile(result.LogFile)
	if err != nil {
		return ""
	}
	return stripansi.Strip(string(data))
}

func (a *Aggregator) relPath(path string) string {
	if a.outputsDir == "" {
		return path
	}
	return RelPathIfDescendant(path, a.outputsDir)
}

// span returns the earliest start and latest stop among results
func span(results []*types.ExecutionResult) (string, string) {
	var start, stop string
	for _, r := range results {
		if s := types.FormatTimestamp(r.Start); s != "" && (start == "" || s < start) {
			start = s
		}
		if s := types.FormatTimestamp(r.Stop); s != "" && s > stop {
			stop = s
		}
	}
	return start, stop
}

// RelPathIfDescendant returns path relative to root when path lies under root
// (after resolving symlinks), path unchanged otherwise, and "" when nothing
// exists at path.
func RelPathIfDescendant(path, root string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Lstat(path); err != nil {
		return ""
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = filepath.Clean(root)
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		realPath = filepath.Clean(path)
	}
	if realPath == realRoot || strings.HasPrefix(realPath, realRoot+string(filepath.Separator)) {
		if rel, err := filepath.Rel(realRoot, realPath); err == nil {
			return rel
		}
	}
	return path
}
