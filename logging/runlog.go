package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/acarl005/stripansi"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/log"
)

// PlainWriter strips ANSI escape sequences before writing to the underlying
// writer, so colored terminal output can be mirrored into files.
type PlainWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPlainWriter wraps w
func NewPlainWriter(w io.Writer) *PlainWriter {
	return &PlainWriter{w: w}
}

func (p *PlainWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, stripansi.Strip(string(b))); err != nil {
		return 0, err
	}
	return len(b), nil
}

// RunLog is the test.log file of a run
type RunLog struct {
	file *os.File
}

// OpenRunLog creates <runDir>/test.log
func OpenRunLog(runDir string) (*RunLog, error) {
	path := filepath.Join(runDir, RunLogFilename)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log %s: %w", path, err)
	}
	return &RunLog{file: f}, nil
}

// Path returns the file name of the run log
func (l *RunLog) Path() string {
	return l.file.Name()
}

// Logger returns a logger writing to console and, without colors, to the run log
func (l *RunLog) Logger(console io.Writer, cfg oplog.CLIConfig) log.Logger {
	return oplog.NewLogger(io.MultiWriter(console, NewPlainWriter(l.file)), cfg)
}

// Tee returns a writer copying to console and, without colors, to the run log
func (l *RunLog) Tee(console io.Writer) io.Writer {
	return io.MultiWriter(console, NewPlainWriter(l.file))
}

// Close closes the run log
func (l *RunLog) Close() error {
	return l.file.Close()
}
