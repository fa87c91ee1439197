package testr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/sot/testr/flags"
	"github.com/sot/testr/runner"
	"github.com/sot/testr/selection"
	"github.com/sot/testr/types"
	"github.com/sot/testr/version"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

// Config holds the application configuration
type Config struct {
	Root          string // absolute
	PackagesDir   string // absolute, defaults to <Root>/packages
	OutputsDir    string // absolute
	OutputsSubdir string
	RegressDir    string // absolute <regress-dir>/<subdir>[/<test spec name>]

	TestSpec     string // test spec name as given, "" if none
	TestSpecPath string
	Selection    *selection.Spec

	CollectOnly        bool
	Overwrite          bool
	StopOnFailure      bool
	OutputRealtimeLogs bool // Echo script output to the console as it is produced
	IncludeStdout      bool // Embed script output in the JSON report
	ValidateReport     bool
	Timeout            time.Duration // Per-script timeout, 0 disables it

	PackagesRepo      string
	Interpreters      runner.Interpreters
	PackageVersionCmd string
	MetricsFile       string

	System    types.SystemInfo
	VersionID string
	Start     time.Time
	Argv      []string

	LogConfig oplog.CLIConfig
	Log       log.Logger
}

// RunDir is the outputs subdirectory of this run
func (c *Config) RunDir() string {
	return filepath.Join(c.OutputsDir, c.OutputsSubdir)
}

// NewConfig creates a new Config from cli context. Every validation failure
// is a ConfigurationError.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	root, err := absDir(ctx.String(flags.Root.Name))
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("invalid root: %w", err))
	}

	packagesDir := ctx.String(flags.PackagesDir.Name)
	if packagesDir == "" {
		packagesDir = filepath.Join(root, "packages")
	}
	packagesDir, err = absDir(packagesDir)
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("invalid packages directory: %w", err))
	}

	outputsDir, err := filepath.Abs(ctx.String(flags.OutputsDir.Name))
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve outputs directory: %w", err))
	}
	regressDir, err := filepath.Abs(ctx.String(flags.RegressDir.Name))
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve regress directory: %w", err))
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout < 0 {
		return nil, NewConfigurationError(fmt.Errorf("timeout must not be negative: %s", timeout))
	}

	spec, err := selection.NewSpec(ctx.StringSlice(flags.Include.Name), ctx.StringSlice(flags.Exclude.Name))
	if err != nil {
		return nil, NewConfigurationError(err)
	}
	testSpec := ctx.String(flags.TestSpec.Name)
	var testSpecPath string
	if testSpec != "" {
		testSpecPath, err = selection.FindTestSpec(testSpec, root)
		if err != nil {
			return nil, NewConfigurationError(err)
		}
		if err := spec.LoadTestSpec(testSpecPath); err != nil {
			return nil, NewConfigurationError(err)
		}
	}

	start := time.Now()
	system := version.CurrentSystem()
	label := ctx.String(flags.VersionLabel.Name)
	if label == "" {
		label = version.DetectLabel(ctx.Context)
	}
	versionID := version.ID(system, start, label)

	subdir := ctx.String(flags.OutputsSubdir.Name)
	if subdir == "" {
		subdir = versionID
	}
	if filepath.IsAbs(subdir) || subdir == "." || subdir == ".." {
		return nil, NewConfigurationError(fmt.Errorf("outputs subdirectory must be a relative name: %q", subdir))
	}

	regressDir = filepath.Join(regressDir, subdir)
	if testSpec != "" {
		regressDir = filepath.Join(regressDir, filepath.Base(testSpec))
	}

	return &Config{
		Root:               root,
		PackagesDir:        packagesDir,
		OutputsDir:         outputsDir,
		OutputsSubdir:      subdir,
		RegressDir:         regressDir,
		TestSpec:           testSpec,
		TestSpecPath:       testSpecPath,
		Selection:          spec,
		CollectOnly:        ctx.Bool(flags.CollectOnly.Name),
		Overwrite:          ctx.Bool(flags.Overwrite.Name),
		StopOnFailure:      ctx.Bool(flags.StopOnFailure.Name),
		OutputRealtimeLogs: ctx.Bool(flags.OutputRealtimeLogs.Name),
		IncludeStdout:      ctx.Bool(flags.IncludeStdout.Name),
		ValidateReport:     ctx.Bool(flags.ValidateReport.Name),
		Timeout:            timeout,
		PackagesRepo:       ctx.String(flags.PackagesRepo.Name),
		Interpreters: runner.Interpreters{
			Python: ctx.String(flags.Python.Name),
			Shell:  ctx.String(flags.Shell.Name),
		},
		PackageVersionCmd: ctx.String(flags.PackageVersionCmd.Name),
		MetricsFile:       ctx.String(flags.MetricsFile.Name),
		System:            system,
		VersionID:         versionID,
		Start:             start,
		Argv:              os.Args,
		LogConfig:         oplog.ReadCLIConfig(ctx),
		Log:               log,
	}, nil
}

// absDir resolves path and checks that it is an existing directory
func absDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for '%s': %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errors.New(abs + " is not a directory")
	}
	return abs, nil
}
