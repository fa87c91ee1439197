package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sot/testr/logging"
	"github.com/sot/testr/metrics"
	"github.com/sot/testr/types"
)

// Workspace lays out the per-package directories scripts run in
type Workspace interface {
	// PreparePackage makes a fresh copy of the package in the run tree and
	// returns the directory scripts of that package run in.
	PreparePackage(pkg string) (string, error)
	// RegressDir is where the package's scripts put regression outputs
	RegressDir(pkg string) string
}

// VersionResolver reports the installed version of a package
type VersionResolver interface {
	PackageVersion(ctx context.Context, pkg string) string
}

// Config holds configuration for creating a new Runner
type Config struct {
	Executor     ScriptExecutor
	Workspace    Workspace
	Versions     VersionResolver // optional
	Interpreters Interpreters
	PackagesRepo string
	Timeout      time.Duration // zero disables the per-script timeout
	// StopOnFailure halts the run after the first failing script
	StopOnFailure bool
	// SkipRules holds skip rules loaded ahead of the run by package. When nil
	// each package's skip file is read from its copy in the run tree.
	SkipRules map[string]SkipRules
	Log       log.Logger
}

// Runner executes selected scripts one at a time, package by package.
type Runner struct {
	executor      ScriptExecutor
	workspace     Workspace
	versions      VersionResolver
	interpreters  Interpreters
	packagesRepo  string
	timeout       time.Duration
	stopOnFailure bool
	skipRules     map[string]SkipRules
	log           log.Logger
	tracer        trace.Tracer
}

// NewRunner creates a Runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Runner{
		executor:      cfg.Executor,
		workspace:     cfg.Workspace,
		versions:      cfg.Versions,
		interpreters:  cfg.Interpreters,
		packagesRepo:  cfg.PackagesRepo,
		timeout:       cfg.Timeout,
		stopOnFailure: cfg.StopOnFailure,
		skipRules:     cfg.SkipRules,
		log:           cfg.Log,
		tracer:        otel.Tracer("testr/runner"),
	}, nil
}

// packageGroup is a run of consecutive entries belonging to one package
type packageGroup struct {
	name    string
	scripts []types.ScriptEntry
}

// groupByPackage splits entries into per-package groups, keeping the order in
// which packages first appear.
func groupByPackage(entries []types.ScriptEntry) []packageGroup {
	var groups []packageGroup
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.Package]
		if !ok {
			i = len(groups)
			index[e.Package] = i
			groups = append(groups, packageGroup{name: e.Package})
		}
		groups[i].scripts = append(groups[i].scripts, e)
	}
	return groups
}

// Run executes entries and returns one result per script that was reached.
// Failing scripts never stop the run unless StopOnFailure is set; an error is
// returned only when the run tree cannot be written, a skip file is invalid or
// ctx is cancelled. Results gathered so far are returned alongside the error.
func (r *Runner) Run(ctx context.Context, entries []types.ScriptEntry) ([]*types.ExecutionResult, error) {
	var results []*types.ExecutionResult
	for _, group := range groupByPackage(entries) {
		pkgResults, stop, err := r.runPackage(ctx, group)
		results = append(results, pkgResults...)
		if err != nil {
			return results, err
		}
		if stop {
			r.log.Warn("Stopping run after failure")
			break
		}
	}
	return results, nil
}

func (r *Runner) runPackage(ctx context.Context, group packageGroup) ([]*types.ExecutionResult, bool, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("package %s", group.name),
		trace.WithAttributes(attribute.Int("scripts", len(group.scripts))))
	defer span.End()

	outDir, err := r.workspace.PreparePackage(group.name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to prepare package %s: %w", group.name, err)
	}
	rules, err := r.packageSkipRules(group.name, outDir)
	if err != nil {
		return nil, false, err
	}

	version := UnknownVersion
	if r.versions != nil {
		version = r.versions.PackageVersion(ctx, group.name)
	}
	regressDir := r.workspace.RegressDir(group.name)

	logging.LogBox(r.log, fmt.Sprintf("package %s %s", group.name, version))

	var results []*types.ExecutionResult
	for _, script := range group.scripts {
		if err := ctx.Err(); err != nil {
			return results, false, err
		}

		var result *types.ExecutionResult
		if reason := rules.SkipReason(script.File); reason != "" {
			r.log.Info("Skipping script", "script", script.Path(), "reason", reason)
			result = &types.ExecutionResult{
				Script:         script,
				OutDir:         outDir,
				RegressDir:     regressDir,
				PackageVersion: version,
				Status:         types.TestStatusSkip,
				SkipReason:     reason,
			}
		} else {
			result, err = r.executor.Execute(ctx, ExecContext{
				Script:         script,
				OutDir:         outDir,
				RegressDir:     regressDir,
				PackagesRepo:   r.packagesRepo,
				PackageVersion: version,
				Interpreters:   r.interpreters,
				Timeout:        r.timeout,
			})
			if err != nil {
				return results, false, err
			}
		}

		results = append(results, result)
		metrics.RecordScript(script.Package, string(script.Kind), result.Status, result.Duration())
		r.logResult(result)

		if err := ctx.Err(); err != nil {
			return results, false, err
		}
		if r.stopOnFailure && result.Status == types.TestStatusFail {
			r.logSummary(group.name, results)
			return results, true, nil
		}
	}
	r.logSummary(group.name, results)
	return results, false, nil
}

func (r *Runner) packageSkipRules(pkg, outDir string) (SkipRules, error) {
	if r.skipRules != nil {
		return r.skipRules[pkg], nil
	}
	rules, err := LoadSkipRules(outDir)
	if err != nil {
		return nil, &SkipRulesError{Package: pkg, Err: err}
	}
	return rules, nil
}

func (r *Runner) logSummary(pkg string, results []*types.ExecutionResult) {
	lines := []string{pkg + " Test Summary"}
	for _, result := range results {
		lines = append(lines, fmt.Sprintf("%-20s %s", result.Script.File, result.Status))
	}
	logging.LogBox(r.log, lines...)
}

func (r *Runner) logResult(result *types.ExecutionResult) {
	switch {
	case result.Status == types.TestStatusSkip:
	case result.Error != nil:
		r.log.Error("Script failed", "script", result.Script.Path(), "exit_code", result.ExitCode, "err", result.Error)
	case result.Status == types.TestStatusFail:
		r.log.Warn("Script failed", "script", result.Script.Path(), "exit_code", result.ExitCode,
			"log", result.LogFile)
	default:
		r.log.Info("Script passed", "script", result.Script.Path(), "duration", result.Duration())
	}
}
