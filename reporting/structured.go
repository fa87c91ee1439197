package reporting

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sot/testr/types"
)

// ParsedSuite is one suite read from a structured report
type ParsedSuite struct {
	Name  string
	Cases []types.TestCase
}

// ReportFormat is a structured per-test report a framework-aware script may
// leave next to itself in its output directory.
type ReportFormat interface {
	Name() string
	// ArtifactPath is where a script's report of this format is expected
	ArtifactPath(outDir string, script types.ScriptEntry) string
	Parse(path string) ([]ParsedSuite, error)
}

// DefaultFormats lists the recognised formats in detection order
func DefaultFormats() []ReportFormat {
	return []ReportFormat{JUnitFormat{}, PytestJSONFormat{}}
}

// ReportParseError is a structured report that exists but cannot be read
type ReportParseError struct {
	Path string
	Err  error
}

func (e *ReportParseError) Error() string {
	return fmt.Sprintf("failed to parse report %s: %v", e.Path, e.Err)
}

func (e *ReportParseError) Unwrap() error {
	return e.Err
}

// IsReportParseError checks if an error is a ReportParseError
func IsReportParseError(err error) bool {
	var parseErr *ReportParseError
	return errors.As(err, &parseErr)
}

// DetectArtifact returns the first format whose artifact exists for script
func DetectArtifact(formats []ReportFormat, outDir string, script types.ScriptEntry) (ReportFormat, string, bool) {
	for _, f := range formats {
		path := f.ArtifactPath(outDir, script)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return f, path, true
		}
	}
	return nil, "", false
}

// ParseArtifact parses path with format, wrapping any failure in a ReportParseError
func ParseArtifact(format ReportFormat, path string) ([]ParsedSuite, error) {
	suites, err := format.Parse(path)
	if err != nil {
		return nil, &ReportParseError{Path: path, Err: err}
	}
	return suites, nil
}

func artifactPath(outDir string, script types.ScriptEntry, suffix string) string {
	return filepath.Join(outDir, script.Stem()+suffix)
}

// validDuration reports whether seconds can be stored as a test case time
func validDuration(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0
}
