// Package version computes the identifiers that tie a run to the environment
// it ran in: the host description, the run's version identifier and the
// versions of the packages under test.
package version

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/sot/testr/types"
)

const (
	// Unknown is reported for anything that cannot be determined
	Unknown = "unknown"

	// LabelCommand reports the installed software environment version
	LabelCommand = "ska_version"

	// PackagePlaceholder is replaced by the package name in a version command
	PackagePlaceholder = "{package}"

	idTimeLayout   = "2006-01-02T15-04-05"
	commandTimeout = 30 * time.Second
)

var systemNames = map[string]string{
	"linux":   "Linux",
	"darwin":  "Darwin",
	"windows": "Windows",
	"freebsd": "FreeBSD",
}

// CurrentSystem describes the host the process runs on
func CurrentSystem() types.SystemInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = Unknown
	}
	system, ok := systemNames[runtime.GOOS]
	if !ok {
		system = runtime.GOOS
	}
	return types.SystemInfo{
		System:       system,
		Architecture: strconv.Itoa(strconv.IntSize) + "bit",
		Hostname:     hostname,
		Platform:     runtime.GOOS + "-" + runtime.GOARCH,
	}
}

// ID builds the version identifier <system>_<UTC time>_<label>_<hostname>.
// Colons are replaced so the identifier is usable as a directory name
// everywhere.
func ID(sys types.SystemInfo, t time.Time, label string) string {
	if label == "" {
		label = Unknown
	}
	id := fmt.Sprintf("%s_%s_%s_%s", sys.System, t.UTC().Format(idTimeLayout), label, sys.Hostname)
	return strings.ReplaceAll(id, ":", "-")
}

// DetectLabel returns the output of ska_version when it is on PATH
func DetectLabel(ctx context.Context) string {
	path, err := exec.LookPath(LabelCommand)
	if err != nil {
		return Unknown
	}
	out, err := runOutput(ctx, path)
	if err != nil || out == "" {
		return Unknown
	}
	return out
}

// CommandResolver obtains a package version by running a shell command
// template, e.g. `python -c "import {package}; print({package}.__version__)"`.
type CommandResolver struct {
	template string
	shell    string
	log      log.Logger
	cache    map[string]string
}

// NewCommandResolver creates a resolver. An empty template resolves every
// package to Unknown.
func NewCommandResolver(template, shell string, logger log.Logger) *CommandResolver {
	if shell == "" {
		shell = "bash"
	}
	if logger == nil {
		logger = log.Root()
	}
	return &CommandResolver{
		template: template,
		shell:    shell,
		log:      logger,
		cache:    make(map[string]string),
	}
}

// PackageVersion returns the trimmed stdout of the command for pkg, or
// Unknown when the command fails or prints nothing.
func (r *CommandResolver) PackageVersion(ctx context.Context, pkg string) string {
	if r.template == "" {
		return Unknown
	}
	if v, ok := r.cache[pkg]; ok {
		return v
	}

	cmd := strings.ReplaceAll(r.template, PackagePlaceholder, pkg)
	v, err := runOutput(ctx, r.shell, "-c", cmd)
	if err != nil || v == "" {
		r.log.Debug("Package version not available", "package", pkg, "err", err)
		v = Unknown
	}
	r.cache[pkg] = v
	return v
}

func runOutput(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
