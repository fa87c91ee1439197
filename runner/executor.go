package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sot/testr/types"
)

var _ ScriptExecutor = (*scriptExecutor)(nil)

// ScriptExecutor runs a single script to completion.
// A returned error means the log tree could not be written and is fatal to the
// run; a failing script is reported through the result status instead.
type ScriptExecutor interface {
	Execute(ctx context.Context, ec ExecContext) (*types.ExecutionResult, error)
}

// CmdBuilder creates the command for a script; tests substitute it
type CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// ExecutorConfig configures a ScriptExecutor
type ExecutorConfig struct {
	Log log.Logger
	// Console receives a live copy of script output; nil disables it
	Console    io.Writer
	CmdBuilder CmdBuilder
	Clock      func() time.Time
}

type scriptExecutor struct {
	log        log.Logger
	console    io.Writer
	cmdBuilder CmdBuilder
	clock      func() time.Time
	tracer     trace.Tracer
}

// NewScriptExecutor creates a ScriptExecutor
func NewScriptExecutor(cfg ExecutorConfig) ScriptExecutor {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &scriptExecutor{
		log:        cfg.Log,
		console:    cfg.Console,
		cmdBuilder: cfg.CmdBuilder,
		clock:      cfg.Clock,
		tracer:     otel.Tracer("testr/runner"),
	}
}

// Execute runs the script in ec.OutDir, capturing combined stdout and stderr to
// <file>.log in that directory.
func (e *scriptExecutor) Execute(ctx context.Context, ec ExecContext) (*types.ExecutionResult, error) {
	if ec.OutDir == "" {
		return nil, errors.New("output directory is required")
	}

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("script %s", ec.Script.Path()),
		trace.WithAttributes(
			attribute.String("package", ec.Script.Package),
			attribute.String("file", ec.Script.File),
			attribute.String("kind", string(ec.Script.Kind)),
		))
	defer span.End()

	logPath := filepath.Join(ec.OutDir, ec.Script.LogName())
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", logPath, err)
	}

	tail := newTailBuffer(defaultOutputTailBytes)
	writers := []io.Writer{logFile, tail}
	if e.console != nil {
		writers = append(writers, e.console)
	}
	output := io.MultiWriter(writers...)

	runCtx := ctx
	if ec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, ec.Timeout)
		defer cancel()
	}

	name, args := ec.Interpreters.Command(ec.Script, ec.OutDir)
	cmd := e.cmdBuilder(runCtx, name, args...)
	cmd.Dir = ec.OutDir
	cmd.Env = ec.Environ()
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = waitDelay

	result := &types.ExecutionResult{
		Script:         ec.Script,
		LogFile:        logPath,
		OutDir:         ec.OutDir,
		RegressDir:     ec.RegressDir,
		PackageVersion: ec.PackageVersion,
	}

	e.log.Info(fmt.Sprintf("Running %s %s script", ec.Interpreters.Name(ec.Script), ec.Script.File),
		"package", ec.Script.Package)
	result.Start = e.clock()
	runErr := cmd.Run()
	result.Stop = e.clock()

	if closeErr := logFile.Close(); closeErr != nil {
		return nil, fmt.Errorf("failed to write log file %s: %w", logPath, closeErr)
	}

	result.ExitCode = exitCode(runErr)
	result.Status = types.StatusFromExitCode(result.ExitCode)
	result.OutputTail = tail.String()
	if tail.Truncated() {
		result.OutputTail = truncatedMarker + result.OutputTail
	}

	switch {
	case runErr == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.TimedOut = true
		result.Error = fmt.Errorf("timed out after %s", ec.Timeout)
	case ctx.Err() != nil:
		result.Error = fmt.Errorf("interrupted: %w", ctx.Err())
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			result.Error = fmt.Errorf("failed to run %s: %w", name, runErr)
		}
	}
	if result.Error != nil {
		result.Status = types.TestStatusFail
	}

	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	if result.Status == types.TestStatusFail {
		span.SetStatus(codes.Error, "script failed")
	}

	e.log.Debug("Script finished", "script", ec.Script.Path(), "exit_code", result.ExitCode,
		"status", result.Status, "duration", result.Duration())
	return result, nil
}

// exitCode maps a Run error to an exit status; -1 means the script did not exit
// normally (failed to start or was killed by a signal).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
