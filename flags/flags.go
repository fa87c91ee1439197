package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "TESTR"

var (
	TestSpec = &cli.StringFlag{
		Name:    "test-spec",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_SPEC"),
		Usage:   "Name of a file with include/exclude patterns, looked up in the working directory and then in --root",
	}
	Root = &cli.StringFlag{
		Name:    "root",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ROOT"),
		Usage:   "Directory containing the packages directory",
	}
	PackagesDir = &cli.StringFlag{
		Name:    "packages-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGES_DIR"),
		Usage:   "Directory containing one subdirectory per package (default: <root>/packages)",
	}
	OutputsDir = &cli.StringFlag{
		Name:    "outputs-dir",
		Value:   "outputs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUTS_DIR"),
		Usage:   "Root directory for run outputs",
	}
	OutputsSubdir = &cli.StringFlag{
		Name:    "outputs-subdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUTS_SUBDIR"),
		Usage:   "Subdirectory of --outputs-dir for this run (default: generated version identifier)",
	}
	RegressDir = &cli.StringFlag{
		Name:    "regress-dir",
		Value:   "regress",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REGRESS_DIR"),
		Usage:   "Root directory for regression outputs",
	}
	Include = &cli.StringSliceFlag{
		Name:    "include",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE"),
		Usage:   "Include scripts whose package/file matches this glob (repeatable). Bare names match as a prefix",
	}
	Exclude = &cli.StringSliceFlag{
		Name:    "exclude",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXCLUDE"),
		Usage:   "Exclude scripts whose package/file matches this glob (repeatable)",
	}
	CollectOnly = &cli.BoolFlag{
		Name:    "collect-only",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLLECT_ONLY"),
		Usage:   "List the selected scripts without running them",
	}
	PackagesRepo = &cli.StringFlag{
		Name:    "packages-repo",
		Value:   "https://github.com/sot",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGES_REPO"),
		Usage:   "Repository URL exported to scripts as TESTR_PACKAGES_REPO",
	}
	Overwrite = &cli.BoolFlag{
		Name:    "overwrite",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OVERWRITE"),
		Usage:   "Remove an existing outputs subdirectory before running",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for each script (e.g. '10m'). Set to 0 or omit to disable",
	}
	StopOnFailure = &cli.BoolFlag{
		Name:    "stop-on-failure",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_ON_FAILURE"),
		Usage:   "Stop the run after the first failing script",
	}
	Python = &cli.StringFlag{
		Name:    "python",
		Value:   "python",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PYTHON"),
		Usage:   "Interpreter used for .py scripts",
	}
	Shell = &cli.StringFlag{
		Name:    "shell",
		Value:   "bash",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHELL"),
		Usage:   "Interpreter used for .sh scripts",
	}
	OutputRealtimeLogs = &cli.BoolFlag{
		Name:    "output-realtime-logs",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_REALTIME_LOGS"),
		Usage:   "Echo script output to the console while it runs",
	}
	IncludeStdout = &cli.BoolFlag{
		Name:    "include-stdout",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE_STDOUT"),
		Usage:   "Embed each script's output in the JSON report",
	}
	VersionLabel = &cli.StringFlag{
		Name:    "version-label",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERSION_LABEL"),
		Usage:   "Environment label used in the version identifier (default: output of ska_version, else 'unknown')",
	}
	PackageVersionCmd = &cli.StringFlag{
		Name:    "package-version-cmd",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGE_VERSION_CMD"),
		Usage:   "Shell command printing a package's version; {package} is replaced by the package name",
	}
	MetricsFile = &cli.StringFlag{
		Name:    "metrics-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_FILE"),
		Usage:   "Write run metrics to this file in Prometheus text format",
	}
	ValidateReport = &cli.BoolFlag{
		Name:    "validate-report",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VALIDATE_REPORT"),
		Usage:   "Validate the JSON report against its schema before writing it",
	}
)

var optionalFlags = []cli.Flag{
	TestSpec,
	Root,
	PackagesDir,
	OutputsDir,
	OutputsSubdir,
	RegressDir,
	Include,
	Exclude,
	CollectOnly,
	PackagesRepo,
	Overwrite,
	Timeout,
	StopOnFailure,
	Python,
	Shell,
	OutputRealtimeLogs,
	IncludeStdout,
	VersionLabel,
	PackageVersionCmd,
	MetricsFile,
	ValidateReport,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, optionalFlags...)
}
