package runner

import "time"

// Environment variables exported to every script
const (
	EnvRegressDir     = "TESTR_REGRESS_DIR"
	EnvInterpreter    = "TESTR_INTERPRETER"
	EnvPackage        = "TESTR_PACKAGE"
	EnvPackagesRepo   = "TESTR_PACKAGES_REPO"
	EnvFile           = "TESTR_FILE"
	EnvOutDir         = "TESTR_OUT_DIR"
	EnvPackageVersion = "TESTR_PACKAGE_VERSION"
	EnvStatus         = "TESTR_STATUS"
)

const (
	// DefaultPython is the interpreter used for .py scripts
	DefaultPython = "python"
	// DefaultShell is the interpreter used for .sh scripts
	DefaultShell = "bash"

	// SkipFile is the per-package file of skip rules
	SkipFile = "skip.yml"

	// UnknownVersion is reported when a package version cannot be determined
	UnknownVersion = "unknown"

	// statusNotRun is exported as TESTR_STATUS while a script runs
	statusNotRun = "not run"

	// waitDelay bounds how long we wait for output pipes after a timeout kill
	waitDelay = 10 * time.Second
)
