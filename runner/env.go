package runner

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sot/testr/types"
)

// Interpreters names the programs used for each script interpreter
type Interpreters struct {
	Python string
	Shell  string
}

// Command returns the program and arguments that run script inside dir
func (i Interpreters) Command(script types.ScriptEntry, dir string) (string, []string) {
	switch script.Interpreter {
	case types.InterpreterPython:
		return orDefault(i.Python, DefaultPython), []string{script.File}
	case types.InterpreterShell:
		return orDefault(i.Shell, DefaultShell), []string{script.File}
	default:
		return filepath.Join(dir, script.File), nil
	}
}

// Name is the value exported as TESTR_INTERPRETER
func (i Interpreters) Name(script types.ScriptEntry) string {
	switch script.Interpreter {
	case types.InterpreterPython:
		return orDefault(i.Python, DefaultPython)
	case types.InterpreterShell:
		return orDefault(i.Shell, DefaultShell)
	default:
		return string(types.InterpreterNone)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ExecContext is everything one script invocation needs. It is built once per
// script and never mutated, so executions do not depend on process-wide state.
type ExecContext struct {
	Script         types.ScriptEntry
	OutDir         string
	RegressDir     string
	PackagesRepo   string
	PackageVersion string
	Interpreters   Interpreters
	Timeout        time.Duration

	// BaseEnv is the inherited environment; nil means os.Environ()
	BaseEnv []string
}

// TestrEnv returns the TESTR_* variables for the script
func (c ExecContext) TestrEnv() map[string]string {
	return map[string]string{
		EnvRegressDir:     c.RegressDir,
		EnvInterpreter:    c.Interpreters.Name(c.Script),
		EnvPackage:        c.Script.Package,
		EnvPackagesRepo:   c.PackagesRepo,
		EnvFile:           c.Script.File,
		EnvOutDir:         c.OutDir,
		EnvPackageVersion: c.PackageVersion,
		EnvStatus:         statusNotRun,
	}
}

// Environ returns the complete environment of the subprocess. TESTR_* values
// override inherited ones.
func (c ExecContext) Environ() []string {
	base := c.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	testrEnv := c.TestrEnv()

	env := make([]string, 0, len(base)+len(testrEnv))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := testrEnv[key]; override {
			continue
		}
		env = append(env, kv)
	}
	for _, key := range slices.Sorted(maps.Keys(testrEnv)) {
		env = append(env, key+"="+testrEnv[key])
	}
	return env
}
