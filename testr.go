package testr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/sot/testr/discovery"
	"github.com/sot/testr/logging"
	"github.com/sot/testr/metrics"
	"github.com/sot/testr/reporting"
	"github.com/sot/testr/runner"
	"github.com/sot/testr/types"
	"github.com/sot/testr/version"
)

// Phase is a stage of a testr invocation
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseResolving   Phase = "resolving"
	PhaseFiltering   Phase = "filtering"
	PhaseExecuting   Phase = "executing"
	PhaseAggregating Phase = "aggregating"
	PhaseReporting   Phase = "reporting"
	PhaseDone        Phase = "done"
	PhaseError       Phase = "error"
)

// testr implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &testr{}

// testr discovers, selects and runs package test scripts once, then reports.
type testr struct {
	config  *Config
	version string
	log     log.Logger

	stdout    io.Writer
	executor  runner.ScriptExecutor // nil selects the process executor
	formatter ResultFormatter
	reporter  MetricsReporter

	mu     sync.Mutex
	phase  Phase
	report *types.RunReport

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes a testr instance
type Option func(*testr)

// WithStdout redirects the console table and real-time script output
func WithStdout(w io.Writer) Option {
	return func(t *testr) {
		t.stdout = w
	}
}

// WithExecutor replaces the process executor
func WithExecutor(e runner.ScriptExecutor) Option {
	return func(t *testr) {
		t.executor = e
	}
}

// WithMetricsReporter replaces the default metrics reporter
func WithMetricsReporter(r MetricsReporter) Option {
	return func(t *testr) {
		t.reporter = r
	}
}

func New(config *Config, version string, shutdownCallback func(error), opts ...Option) (*testr, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.Root()
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating testr with config",
		"root", config.Root,
		"packagesDir", config.PackagesDir,
		"outputsDir", config.OutputsDir,
		"outputsSubdir", config.OutputsSubdir,
		"regressDir", config.RegressDir,
		"testSpec", config.TestSpec,
		"includes", config.Selection.EffectiveIncludes(),
		"excludes", config.Selection.Excludes,
		"collectOnly", config.CollectOnly)

	t := &testr{
		config:           config,
		version:          version,
		log:              config.Log,
		stdout:           os.Stdout,
		reporter:         NewDefaultMetricsReporter(config.MetricsFile),
		phase:            PhaseInit,
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.formatter == nil {
		t.formatter = NewConsoleResultFormatter(t.log, t.stdout, t.config.LogConfig.Color)
	}
	return t, nil
}

// Start performs a single run and signals shutdown once it passed.
// Start implements the cliapp.Lifecycle interface.
func (t *testr) Start(ctx context.Context) error {
	t.running.Store(true)
	t.log.Info("Starting run_testr", "version", t.version, "version_id", t.config.VersionID)

	report, err := t.run(ctx)
	if err != nil {
		t.setPhase(PhaseError)
		t.running.Store(false)
		t.log.Error("Run aborted", "error", err)
		return err
	}
	t.setPhase(PhaseDone)

	if report.Failed() {
		t.log.Warn("Run completed with failures, returning exit code 1")
		return NewTestFailureError(fmt.Sprintf("%d of %d test cases failed",
			report.RunInfo.Stats.Failed, report.RunInfo.Stats.Total))
	}

	go func() {
		t.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (t *testr) Stop(ctx context.Context) error {
	if !t.running.Load() {
		t.log.Debug("Already stopped, nothing to do")
		return nil
	}
	t.running.Store(false)
	t.log.Info("run_testr stopped")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (t *testr) Stopped() bool {
	return !t.running.Load()
}

// Phase returns the stage the run is in
func (t *testr) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Report returns the report of the last run, nil before reporting
func (t *testr) Report() *types.RunReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report
}

func (t *testr) setPhase(p Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
	t.log.Debug("Phase changed", "phase", p)
}

func (t *testr) run(ctx context.Context) (*types.RunReport, error) {
	ctx, span := otel.Tracer("testr").Start(ctx, "run")
	defer span.End()
	span.SetAttributes(attribute.String("version_id", t.config.VersionID))

	t.setPhase(PhaseResolving)
	_, entries, err := discovery.NewResolver(t.config.PackagesDir, t.log).Resolve()
	if err != nil {
		return nil, NewConfigurationError(err)
	}

	t.setPhase(PhaseFiltering)
	selected := t.config.Selection.Filter(entries)
	t.log.Info("Selected scripts", "selected", len(selected), "discovered", len(entries))
	span.SetAttributes(attribute.Int("scripts", len(selected)))

	skipRules, err := runner.LoadPackageSkipRules(t.config.PackagesDir, selected)
	if err != nil {
		return nil, NewConfigurationError(err)
	}

	runDir, err := logging.PrepareRunDir(t.config.OutputsDir, t.config.OutputsSubdir, t.config.Overwrite, t.log)
	if err != nil {
		return nil, NewIOError(err)
	}
	runLog, err := logging.OpenRunLog(runDir)
	if err != nil {
		return nil, NewIOError(err)
	}
	defer func() {
		t.log = t.config.Log
		if err := runLog.Close(); err != nil {
			t.log.Warn("Failed to close run log", "error", err)
		}
	}()
	t.log = runLog.Logger(t.stdout, t.config.LogConfig)
	t.log.Info("Run directory ready", "dir", runDir, "log", runLog.Path())

	info := types.RunInfo{
		Date:      types.FormatTimestamp(t.config.Start),
		Argv:      t.config.Argv,
		RunID:     uuid.New().String(),
		VersionID: t.config.VersionID,
		TestSpec:  t.config.TestSpec,
	}
	aggregator := reporting.NewAggregator(reporting.AggregatorConfig{
		OutputsDir:    runDir,
		System:        t.config.System,
		IncludeStdout: t.config.IncludeStdout,
		Log:           t.log,
	})

	var report *types.RunReport
	if t.config.CollectOnly {
		for _, e := range selected {
			fmt.Fprintln(t.stdout, e.Path())
		}
		report = aggregator.Collected(info, selected)
	} else {
		t.setPhase(PhaseExecuting)
		results, runErr := t.execute(ctx, runDir, runLog, selected, skipRules)
		if runErr != nil && !isInterrupt(runErr) {
			span.SetStatus(codes.Error, runErr.Error())
			return nil, NewIOError(runErr)
		}

		t.setPhase(PhaseAggregating)
		report = aggregator.Aggregate(info, results)
		if runErr != nil {
			// Report what ran before the interruption, then abort
			if err := t.publish(report); err != nil {
				t.log.Error("Failed to write partial report", "error", err)
			}
			span.SetStatus(codes.Error, runErr.Error())
			return nil, fmt.Errorf("run interrupted: %w", runErr)
		}
	}

	if err := t.publish(report); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if report.Failed() {
		span.SetStatus(codes.Error, "test failures")
	}
	return report, nil
}

func (t *testr) execute(ctx context.Context, runDir string, runLog *logging.RunLog, selected []types.ScriptEntry, skipRules map[string]runner.SkipRules) ([]*types.ExecutionResult, error) {
	executor := t.executor
	if executor == nil {
		var console io.Writer
		if t.config.OutputRealtimeLogs {
			console = runLog.Tee(t.stdout)
		}
		executor = runner.NewScriptExecutor(runner.ExecutorConfig{
			Log:     t.log,
			Console: console,
		})
	}

	r, err := runner.NewRunner(runner.Config{
		Executor:      executor,
		Workspace:     logging.NewWorkspace(t.config.PackagesDir, runDir, t.config.RegressDir, t.log),
		Versions:      version.NewCommandResolver(t.config.PackageVersionCmd, t.config.Interpreters.Shell, t.log),
		Interpreters:  t.config.Interpreters,
		PackagesRepo:  t.config.PackagesRepo,
		Timeout:       t.config.Timeout,
		StopOnFailure: t.config.StopOnFailure,
		SkipRules:     skipRules,
		Log:           t.log,
	})
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, selected)
}

// publish writes the report files, prints the console table and records metrics
func (t *testr) publish(report *types.RunReport) error {
	t.setPhase(PhaseReporting)
	t.mu.Lock()
	t.report = report
	t.mu.Unlock()

	runDir := t.config.RunDir()
	sinks := []reporting.ReportSink{
		reporting.NewJSONSink(runDir, t.config.ValidateReport),
		reporting.NewTextSummarySink(runDir),
	}
	for _, sink := range sinks {
		if err := sink.Complete(report); err != nil {
			metrics.RecordErrorDetails("report", err)
			return NewIOError(err)
		}
	}

	if err := t.formatter.FormatResults(report); err != nil {
		t.log.Warn("Failed to print results", "error", err)
	}

	if !t.config.CollectOnly {
		if err := t.reporter.ReportResults(report, time.Since(t.config.Start)); err != nil {
			t.log.Warn("Failed to report metrics", "error", err)
		}
	}

	t.log.Info("Run completed",
		"run_id", report.RunInfo.RunID,
		"status", report.RunInfo.Status,
		"total", report.RunInfo.Stats.Total,
		"failed", report.RunInfo.Stats.Failed,
		"report", filepath.Join(runDir, reporting.SummaryJSONFilename))
	return nil
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
