package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/acarl005/stripansi"
)

// UnitLog captures the console output of one execution unit. Output is
// written line by line with terminal escape sequences removed so that the
// file stays readable after the run.
type UnitLog struct {
	path string

	mu      sync.Mutex
	file    *os.File
	pending []byte
	written int64
	closed  bool
}

// OpenUnitLog creates (or truncates) the log file at path, creating parent
// directories as needed.
func OpenUnitLog(path string) (*UnitLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit log %s: %w", path, err)
	}
	return &UnitLog{path: path, file: file}, nil
}

// Path returns the location of the log file.
func (l *UnitLog) Path() string {
	return l.path
}

// Write buffers p and flushes every complete line. It is safe to share one
// UnitLog between the stdout and stderr of a subprocess.
func (l *UnitLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, fmt.Errorf("unit log %s is closed", l.path)
	}

	l.pending = append(l.pending, p...)
	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			break
		}
		if err := l.flushLine(l.pending[:idx+1]); err != nil {
			return 0, err
		}
		l.pending = l.pending[idx+1:]
	}
	return len(p), nil
}

func (l *UnitLog) flushLine(line []byte) error {
	n, err := l.file.WriteString(stripANSIEscapeSequences(string(line)))
	l.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write unit log %s: %w", l.path, err)
	}
	return nil
}

// BytesWritten reports how many cleaned bytes reached the file.
func (l *UnitLog) BytesWritten() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close flushes any trailing partial line and closes the file. Calling
// Close more than once is a no-op.
func (l *UnitLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var flushErr error
	if len(l.pending) > 0 {
		flushErr = l.flushLine(l.pending)
		l.pending = nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	return flushErr
}

func stripANSIEscapeSequences(s string) string {
	return stripansi.Strip(s)
}
