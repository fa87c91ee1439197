package testr

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sot/testr/logging"
	"github.com/sot/testr/reporting"
	"github.com/sot/testr/runner"
	"github.com/sot/testr/selection"
	"github.com/sot/testr/types"
	"github.com/sot/testr/version"
)

// fixture is a root directory with a packages tree
type fixture struct {
	root     string
	packages string
	outputs  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:     root,
		packages: filepath.Join(root, "packages"),
		outputs:  filepath.Join(root, "outputs"),
	}
	require.NoError(t, os.MkdirAll(f.packages, 0755))
	return f
}

func (f *fixture) script(t *testing.T, pkg, file, body string) {
	t.Helper()
	dir := filepath.Join(f.packages, pkg)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body+"\n"), 0644))
}

// config builds a Config the way NewConfig would. Python scripts are run by
// bash so the fixtures need no python installation.
func (f *fixture) config(t *testing.T, includes, excludes []string) *Config {
	t.Helper()
	spec, err := selection.NewSpec(includes, excludes)
	require.NoError(t, err)
	logCfg := oplog.DefaultCLIConfig()
	logCfg.Color = false
	return &Config{
		Root:               f.root,
		PackagesDir:        f.packages,
		OutputsDir:         f.outputs,
		OutputsSubdir:      "run1",
		RegressDir:         filepath.Join(f.root, "regress", "run1"),
		Selection:          spec,
		OutputRealtimeLogs: true,
		ValidateReport:     true,
		PackagesRepo:       "https://github.com/sot",
		Interpreters:       runner.Interpreters{Python: "bash", Shell: "bash"},
		System:             version.CurrentSystem(),
		VersionID:          "v1",
		Start:              time.Now(),
		Argv:               []string{"run_testr"},
		LogConfig:          logCfg,
		Log:                log.NewLogger(log.DiscardHandler()),
	}
}

// outcome is the result of one invocation
type outcome struct {
	tr       *testr
	err      error
	stdout   *bytes.Buffer
	shutdown bool // whether the instance asked the app to exit
}

func start(t *testing.T, cfg *Config, opts ...Option) outcome {
	t.Helper()
	return startContext(t, context.Background(), cfg, opts...)
}

func startContext(t *testing.T, ctx context.Context, cfg *Config, opts ...Option) outcome {
	t.Helper()
	o := outcome{stdout: &bytes.Buffer{}}
	shutdown := make(chan error, 1)
	opts = append([]Option{WithStdout(o.stdout)}, opts...)
	tr, err := New(cfg, "test", func(err error) { shutdown <- err }, opts...)
	require.NoError(t, err)
	o.tr = tr

	o.err = tr.Start(ctx)
	select {
	case <-shutdown:
		o.shutdown = true
	case <-time.After(200 * time.Millisecond):
	}
	return o
}

func scriptPaths(report *types.RunReport) []string {
	var paths []string
	for _, s := range report.Scripts {
		paths = append(paths, s.Package+"/"+s.File)
	}
	return paths
}

func scriptStatuses(report *types.RunReport) map[string]types.TestStatus {
	statuses := make(map[string]types.TestStatus)
	for _, s := range report.Scripts {
		statuses[s.Package+"/"+s.File] = s.Status
	}
	return statuses
}

func scenarioPackages(t *testing.T, f *fixture, postExit int) {
	t.Helper()
	f.script(t, "py_package", "test_unit.py", "echo unit; exit 0")
	f.script(t, "py_package", "post_check_logs.py", "echo checking logs; exit "+strconv.Itoa(postExit))
	f.script(t, "other_package", "test_regress_long.sh", "echo regress; exit 0")
}

func TestAllScriptsPass(t *testing.T) {
	f := newFixture(t)
	scenarioPackages(t, f, 0)

	o := start(t, f.config(t, nil, nil))
	require.NoError(t, o.err)
	assert.True(t, o.shutdown, "a passing run must request shutdown")
	assert.Equal(t, PhaseDone, o.tr.Phase())

	report := o.tr.Report()
	require.NotNil(t, report)
	assert.Equal(t, []string{
		"other_package/test_regress_long.sh",
		"py_package/test_unit.py",
		"py_package/post_check_logs.py",
	}, scriptPaths(report))
	for path, status := range scriptStatuses(report) {
		assert.Equal(t, types.TestStatusPass, status, path)
	}
	assert.Equal(t, types.TestStatusPass, report.RunInfo.Status)
	assert.Equal(t, "v1", report.RunInfo.VersionID)
	assert.NotEmpty(t, report.RunInfo.RunID)

	runDir := filepath.Join(f.outputs, "run1")
	written, err := reporting.ReadReport(filepath.Join(runDir, reporting.SummaryJSONFilename))
	require.NoError(t, err)
	assert.Equal(t, report.RunInfo.Stats, written.RunInfo.Stats)
	assert.FileExists(t, filepath.Join(runDir, reporting.SummaryTextFilename))
	assert.FileExists(t, filepath.Join(runDir, logging.RunLogFilename))
	assert.FileExists(t, filepath.Join(runDir, "py_package", "test_unit.py.log"))

	target, err := os.Readlink(filepath.Join(f.outputs, logging.LastLinkName))
	require.NoError(t, err)
	assert.Equal(t, "run1", target)

	// Script output is echoed while it runs and the table follows
	out := o.stdout.String()
	assert.Contains(t, out, "checking logs")
	assert.Contains(t, out, "Test Results")
}

func TestFailingPostScript(t *testing.T) {
	f := newFixture(t)
	scenarioPackages(t, f, 1)

	o := start(t, f.config(t, nil, nil))
	require.Error(t, o.err)
	assert.True(t, IsTestFailureError(o.err))
	assert.False(t, o.shutdown)

	report := o.tr.Report()
	require.NotNil(t, report)
	assert.Equal(t, map[string]types.TestStatus{
		"other_package/test_regress_long.sh": types.TestStatusPass,
		"py_package/test_unit.py":            types.TestStatusPass,
		"py_package/post_check_logs.py":      types.TestStatusFail,
	}, scriptStatuses(report))
	assert.Equal(t, types.TestStatusFail, report.RunInfo.Status)
	assert.Equal(t, 1, report.RunInfo.Stats.Failed)
}

func TestImplicitPackageWildcard(t *testing.T) {
	f := newFixture(t)
	f.script(t, "py_package", "test_a.sh", "exit 0")
	f.script(t, "py_package_2", "test_b.sh", "exit 0")

	tests := []struct {
		include string
		want    []string
	}{
		{"py_package", []string{"py_package/test_a.sh", "py_package_2/test_b.sh"}},
		{"py_package/", []string{"py_package/test_a.sh"}},
	}
	for _, tt := range tests {
		t.Run(tt.include, func(t *testing.T) {
			cfg := f.config(t, []string{tt.include}, nil)
			cfg.Overwrite = true
			o := start(t, cfg)
			require.NoError(t, o.err)
			assert.Equal(t, tt.want, scriptPaths(o.tr.Report()))
		})
	}
}

func TestTestSpecExcludesLongScripts(t *testing.T) {
	f := newFixture(t)
	f.script(t, "acisfp_check", "test_short.sh", "exit 0")
	f.script(t, "acisfp_check", "test_regress_long.sh", "exit 1")
	f.script(t, "other", "test_x.sh", "exit 0")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "HEAD"),
		[]byte("acisfp_check\n\n# comment\n-*_long*\n"), 0644))

	cfg := f.config(t, nil, nil)
	require.NoError(t, cfg.Selection.LoadTestSpec(filepath.Join(f.root, "HEAD")))
	cfg.TestSpec = "HEAD"
	assert.Equal(t, []string{"acisfp_check*"}, cfg.Selection.Includes)
	assert.Equal(t, []string{"*_long*"}, cfg.Selection.Excludes)

	o := start(t, cfg)
	require.NoError(t, o.err)
	assert.Equal(t, []string{"acisfp_check/test_short.sh"}, scriptPaths(o.tr.Report()))
	assert.Equal(t, "HEAD", o.tr.Report().RunInfo.TestSpec)
}

// countingExecutor fails the test if any script is executed
type countingExecutor struct {
	calls int
}

func (e *countingExecutor) Execute(_ context.Context, ec runner.ExecContext) (*types.ExecutionResult, error) {
	e.calls++
	return &types.ExecutionResult{Script: ec.Script, Status: types.TestStatusPass}, nil
}

func TestCollectOnly(t *testing.T) {
	f := newFixture(t)
	scenarioPackages(t, f, 1)
	cfg := f.config(t, nil, nil)
	cfg.CollectOnly = true
	cfg.LogConfig.Level = log.LevelDebug

	executor := &countingExecutor{}
	o := start(t, cfg, WithExecutor(executor))
	require.NoError(t, o.err)
	assert.True(t, o.shutdown)
	assert.Zero(t, executor.calls)

	report := o.tr.Report()
	require.NotNil(t, report)
	assert.Len(t, report.TestSuite.TestCases, 3)
	assert.Empty(t, report.TestSuites)
	assert.Contains(t, o.stdout.String(), "py_package/post_check_logs.py")

	runDir := filepath.Join(f.outputs, "run1")
	data, err := os.ReadFile(filepath.Join(runDir, reporting.SummaryJSONFilename))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"status"`)
	assert.NoDirExists(t, filepath.Join(runDir, "py_package"), "packages are not copied")

	// Nothing ran, so there is nothing to aggregate
	runLog, err := os.ReadFile(filepath.Join(runDir, logging.RunLogFilename))
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "phase=reporting")
	assert.NotContains(t, string(runLog), "phase=aggregating")
	assert.Equal(t, PhaseDone, o.tr.Phase())
}

func TestInvalidSkipFileIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.script(t, "pkg", "test_a.sh", "exit 0")
	f.script(t, "pkg", runner.SkipFile, "test_*:\n  check_func: is_beos")

	o := start(t, f.config(t, nil, nil))
	require.Error(t, o.err)
	assert.True(t, IsConfigurationError(o.err))
	assert.Equal(t, PhaseError, o.tr.Phase())
	assert.True(t, o.tr.Stopped())
}

func TestInvalidSkipFileAbortsBeforeExecution(t *testing.T) {
	f := newFixture(t)
	marker := filepath.Join(f.root, "a_pkg_ran")
	f.script(t, "a_pkg", "test_a.sh", "touch "+marker)
	f.script(t, "b_pkg", "test_b.sh", "exit 0")
	f.script(t, "b_pkg", runner.SkipFile, "test_*:\n  check_func: is_beos")

	o := start(t, f.config(t, nil, nil))
	require.Error(t, o.err)
	assert.True(t, IsConfigurationError(o.err))
	assert.Contains(t, o.err.Error(), "b_pkg")
	assert.NoFileExists(t, marker)
	assert.NoDirExists(t, filepath.Join(f.outputs, "run1"))
}

func TestUnselectedPackageSkipFileIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.script(t, "a_pkg", "test_a.sh", "exit 0")
	f.script(t, "b_pkg", "test_b.sh", "exit 0")
	f.script(t, "b_pkg", runner.SkipFile, "test_*:\n  check_func: is_beos")

	o := start(t, f.config(t, []string{"a_pkg/"}, nil))
	require.NoError(t, o.err)
	assert.Equal(t, []string{"a_pkg/test_a.sh"}, scriptPaths(o.tr.Report()))
}

// cancellingExecutor runs scripts for real and cancels the run after the first
type cancellingExecutor struct {
	runner.ScriptExecutor
	cancel context.CancelFunc
}

func (e *cancellingExecutor) Execute(ctx context.Context, ec runner.ExecContext) (*types.ExecutionResult, error) {
	result, err := e.ScriptExecutor.Execute(ctx, ec)
	e.cancel()
	return result, err
}

func TestInterruptedRunWritesPartialReport(t *testing.T) {
	f := newFixture(t)
	scenarioPackages(t, f, 0)
	cfg := f.config(t, nil, nil)
	cfg.LogConfig.Level = log.LevelDebug

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	executor := &cancellingExecutor{
		ScriptExecutor: runner.NewScriptExecutor(runner.ExecutorConfig{}),
		cancel:         cancel,
	}

	o := startContext(t, ctx, cfg, WithExecutor(executor))
	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, context.Canceled)
	assert.False(t, IsConfigurationError(o.err))
	assert.False(t, IsIOError(o.err))
	assert.False(t, o.shutdown)
	assert.Equal(t, PhaseError, o.tr.Phase())

	report := o.tr.Report()
	require.NotNil(t, report)
	assert.Equal(t, []string{"other_package/test_regress_long.sh"}, scriptPaths(report))

	runDir := filepath.Join(f.outputs, "run1")
	written, err := reporting.ReadReport(filepath.Join(runDir, reporting.SummaryJSONFilename))
	require.NoError(t, err)
	assert.Equal(t, 1, written.RunInfo.Stats.Total)
	assert.FileExists(t, filepath.Join(runDir, "other_package", "test_regress_long.sh.log"))
	assert.NoDirExists(t, filepath.Join(runDir, "py_package"))

	runLog, err := os.ReadFile(filepath.Join(runDir, logging.RunLogFilename))
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "phase=aggregating")
}

func TestSkippedScriptsDoNotFailTheRun(t *testing.T) {
	f := newFixture(t)
	f.script(t, "pkg", "test_a.sh", "exit 0")
	f.script(t, "pkg", "test_windows.sh", "exit 1")
	f.script(t, "pkg", runner.SkipFile, "test_windows.sh:\n  check_func: not is_windows\n  reason: windows only")

	o := start(t, f.config(t, nil, nil))
	require.NoError(t, o.err)
	assert.Equal(t, map[string]types.TestStatus{
		"pkg/test_a.sh":       types.TestStatusPass,
		"pkg/test_windows.sh": types.TestStatusSkip,
	}, scriptStatuses(o.tr.Report()))
}

func TestReadOnlyOutputsIsIOError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	f := newFixture(t)
	f.script(t, "pkg", "test_a.sh", "exit 0")
	require.NoError(t, os.MkdirAll(f.outputs, 0555))

	o := start(t, f.config(t, nil, nil))
	require.Error(t, o.err)
	assert.True(t, IsIOError(o.err))
}

// recordingReporter captures the reports handed to metrics
type recordingReporter struct {
	reports []*types.RunReport
}

func (r *recordingReporter) ReportResults(report *types.RunReport, _ time.Duration) error {
	r.reports = append(r.reports, report)
	return nil
}

func TestMetricsReporterReceivesReport(t *testing.T) {
	f := newFixture(t)
	f.script(t, "pkg", "test_a.sh", "exit 0")

	reporter := &recordingReporter{}
	o := start(t, f.config(t, nil, nil), WithMetricsReporter(reporter))
	require.NoError(t, o.err)
	require.Len(t, reporter.reports, 1)
	assert.Equal(t, 1, reporter.reports[0].RunInfo.Stats.Passed)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, "test", nil)
	require.Error(t, err)
}

func TestSummaryLine(t *testing.T) {
	report := &types.RunReport{
		RunInfo: types.RunInfo{
			VersionID: "v1",
			Status:    types.TestStatusFail,
			Stats:     types.ResultStats{Total: 3, Passed: 1, Failed: 1, Skipped: 1},
		},
	}
	assert.Equal(t, "Run v1: fail (3 test cases: 1 passed, 1 failed, 1 skipped)", summaryLine(report))

	collected := &types.RunReport{Scripts: make([]types.ScriptSummary, 2)}
	assert.True(t, strings.HasPrefix(summaryLine(collected), "Collected 2"))
}
