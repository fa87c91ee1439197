package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sot/testr"
	"github.com/sot/testr/exitcodes"
)

func TestExitCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcodes.Success},
		{"configuration", testr.NewConfigurationError(cause), exitcodes.RuntimeErr},
		{"wrapped configuration", fmt.Errorf("failed to create config: %w", testr.NewConfigurationError(cause)), exitcodes.RuntimeErr},
		{"io", testr.NewIOError(cause), exitcodes.RuntimeErr},
		{"test failure", fmt.Errorf("failed to start: %w", testr.NewTestFailureError("1 failed")), exitcodes.TestFailure},
		{"unspecified", cause, exitcodes.TestFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// TestExitCodeBehavior verifies that run_testr returns the correct exit codes:
// - Exit code 0 when all scripts pass
// - Exit code 1 when any test case fails
// - Exit code 2 when the run cannot be configured
func TestExitCodeBehavior(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the run_testr binary")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash is required")
	}
	binary := buildRunTestr(t)

	testCases := []struct {
		name           string
		scripts        map[string]string // package/file -> body
		extraArgs      []string
		expectedStatus int
	}{
		{
			name: "Passing scripts should exit with code 0",
			scripts: map[string]string{
				"pkg_a/test_one.sh":  "exit 0",
				"pkg_a/post_logs.sh": "exit 0",
			},
			expectedStatus: exitcodes.Success,
		},
		{
			name: "Failing scripts should exit with code 1",
			scripts: map[string]string{
				"pkg_a/test_one.sh": "exit 0",
				"pkg_b/test_two.sh": "exit 3",
			},
			expectedStatus: exitcodes.TestFailure,
		},
		{
			name:           "Missing test spec should exit with code 2",
			scripts:        map[string]string{"pkg_a/test_one.sh": "exit 0"},
			extraArgs:      []string{"--test-spec=NOPE"},
			expectedStatus: exitcodes.RuntimeErr,
		},
		{
			name: "Excluded failures are not run",
			scripts: map[string]string{
				"pkg_a/test_one.sh":      "exit 0",
				"pkg_a/test_one_long.sh": "exit 1",
			},
			extraArgs:      []string{"--exclude=*_long*"},
			expectedStatus: exitcodes.Success,
		},
		{
			name: "Character classes may contain commas",
			scripts: map[string]string{
				"pkg_a/test_a.sh": "exit 0",
				"pkg_a/test_c.sh": "exit 1",
			},
			extraArgs:      []string{"--include=pkg_a/test_[a,b].sh"},
			expectedStatus: exitcodes.Success,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			for path, body := range tc.scripts {
				writeFile(t, filepath.Join(root, "packages", path), body+"\n")
			}
			args := append([]string{
				"--root=" + root,
				"--outputs-dir=" + filepath.Join(root, "outputs"),
				"--regress-dir=" + filepath.Join(root, "regress"),
				"--outputs-subdir=run",
				"--version-label=test",
			}, tc.extraArgs...)

			status := runBinary(t, binary, args...)
			assert.Equal(t, tc.expectedStatus, status)
			if status != exitcodes.RuntimeErr {
				assert.FileExists(t, filepath.Join(root, "outputs", "run", "all_tests.json"))
			}
		})
	}
}

func buildRunTestr(t *testing.T) string {
	t.Helper()
	binary := filepath.Join(t.TempDir(), "run_testr")
	buildCmd := exec.Command("go", "build", "-o", binary, ".")
	var buildOutput bytes.Buffer
	buildCmd.Stdout = &buildOutput
	buildCmd.Stderr = &buildOutput
	if err := buildCmd.Run(); err != nil {
		t.Logf("Build output:\n%s", buildOutput.String())
		t.Fatalf("Failed to build run_testr binary: %v", err)
	}
	return binary
}

func runBinary(t *testing.T, binary string, args ...string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	execCmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr
	err := execCmd.Run()

	if stdout.Len() > 0 {
		t.Logf("stdout:\n%s", stdout.String())
	}
	if stderr.Len() > 0 {
		t.Logf("stderr:\n%s", stderr.String())
	}
	if ctx.Err() == context.DeadlineExceeded {
		t.Logf("Command timed out")
		return exitcodes.RuntimeErr
	}
	if err == nil {
		return exitcodes.Success
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return exitcodes.RuntimeErr
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
