package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sot/testr/schema"
	"github.com/sot/testr/types"
)

const (
	SummaryJSONFilename = "all_tests.json"
	SummaryTextFilename = "summary.log"
)

// ReportSink consumes the finished report of a run
type ReportSink interface {
	Complete(report *types.RunReport) error
}

// JSONSink writes the summary log in one piece once the run is complete
type JSONSink struct {
	path     string
	validate bool
}

// NewJSONSink creates a sink writing <dir>/all_tests.json
func NewJSONSink(dir string, validate bool) *JSONSink {
	return &JSONSink{path: filepath.Join(dir, SummaryJSONFilename), validate: validate}
}

// Path returns the file the sink writes
func (s *JSONSink) Path() string {
	return s.path
}

// Complete serializes the report, validates it against the summary schema
// and writes it.
func (s *JSONSink) Complete(report *types.RunReport) error {
	data, err := MarshalReport(report)
	if err != nil {
		return err
	}
	if s.validate {
		if err := schema.ValidateSummary(data); err != nil {
			return err
		}
	}
	return writeFileAtomic(s.path, data)
}

// MarshalReport renders the summary log document
func MarshalReport(report *types.RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadReport loads a summary log written by JSONSink
func ReadReport(path string) (*types.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	var report types.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return &report, nil
}

// TextSummarySink writes the plain results table to summary.log
type TextSummarySink struct {
	path string
}

// NewTextSummarySink creates a sink writing <dir>/summary.log
func NewTextSummarySink(dir string) *TextSummarySink {
	return &TextSummarySink{path: filepath.Join(dir, SummaryTextFilename)}
}

// Complete renders the table without colors and writes it
func (s *TextSummarySink) Complete(report *types.RunReport) error {
	content := ScriptTable(report, false).Render() + "\n"
	return writeFileAtomic(s.path, []byte(content))
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader never observes a partially written file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
