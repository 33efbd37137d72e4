package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// DefaultTailLines is how many trailing lines of a failed worker's log
	// are kept.
	DefaultTailLines = 20
)

// FailurePatterns mark log lines that usually explain a failing test run.
var FailurePatterns = []string{
	"--- FAIL",
	"FAIL",
	"panic:",
	"Error",
	"error:",
	"not ok",
}

// Tail keeps the most recent lines written to it in a ring buffer.
type Tail struct {
	mu     sync.Mutex
	buffer []string
	next   int
	count  int
}

// NewTail creates a tail keeping up to n lines.
func NewTail(n int) *Tail {
	if n <= 0 {
		n = DefaultTailLines
	}
	return &Tail{buffer: make([]string, n)}
}

// ReadFrom consumes r line by line.
func (t *Tail) ReadFrom(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, MaxLineLength), MaxLineLength)
	scanner.Split(scanLinesTruncated)

	var n int64
	for scanner.Scan() {
		line := scanner.Text()
		n += int64(len(line)) + 1
		t.HandleLine(line)
	}
	return n, scanner.Err()
}

// HandleLine stores one line, truncating overly long ones.
func (t *Tail) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	t.mu.Lock()
	t.buffer[t.next] = line
	t.next = (t.next + 1) % len(t.buffer)
	if t.count < len(t.buffer) {
		t.count++
	}
	t.mu.Unlock()
}

// Lines returns the buffered lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := make([]string, 0, t.count)
	start := (t.next - t.count + len(t.buffer)) % len(t.buffer)
	for i := 0; i < t.count; i++ {
		lines = append(lines, t.buffer[(start+i)%len(t.buffer)])
	}
	return lines
}

// Failures returns the buffered lines matching a failure pattern.
func (t *Tail) Failures() []string {
	var out []string
	for _, line := range t.Lines() {
		for _, pattern := range FailurePatterns {
			if strings.Contains(line, pattern) {
				out = append(out, line)
				break
			}
		}
	}
	return out
}

// TailFile returns the last n lines of the file at path.
func TailFile(path string, n int) ([]string, error) {
	t, err := readTail(path, n)
	if err != nil {
		return nil, err
	}
	return t.Lines(), nil
}

func readTail(path string, n int) (*Tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	t := NewTail(n)
	if _, err := t.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	return t, nil
}

// LogTail reports the end of a failed worker's log: lines matching a
// failure pattern at warn level, then the last n lines at debug level.
// Errors reading the log are logged, never returned.
func LogTail(logger *slog.Logger, path string, n int) {
	t, err := readTail(path, n)
	if err != nil {
		logger.Warn("worker_log_unreadable", "log_file", path, "error", err)
		return
	}
	for _, line := range t.Failures() {
		logger.Warn("worker_failure_line", "log_file", path, "line", line)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, line := range t.Lines() {
		logger.Debug("worker_log", "log_file", path, "line", line)
	}
}

// scanLinesTruncated splits like bufio.ScanLines but emits overly long lines
// in MaxLineLength chunks instead of failing with bufio.ErrTooLong.
func scanLinesTruncated(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= MaxLineLength {
		return MaxLineLength, data[:MaxLineLength], nil
	}
	return advance, token, err
}
