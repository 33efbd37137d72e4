package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseLevel(tc.input))
		})
	}
}

func TestNewLogger_FormatsAndLevels(t *testing.T) {
	for _, format := range []string{"json", "text", "TEXT", "", "invalid"} {
		for _, level := range []string{"debug", "info", "error", ""} {
			assert.NotNil(t, NewLogger(format, level, false), "format %q level %q", format, level)
		}
	}
	assert.True(t, NewLogger("text", "error", true).Enabled(t.Context(), slog.LevelDebug), "verbose enables debug")
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(&buf, "json", "info").Info("worker_spawned", "pid", 42)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), buf.String())
	assert.Equal(t, "worker_spawned", rec["msg"])
	assert.Equal(t, float64(42), rec["pid"])
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "warn")

	logger.Info("info msg")
	logger.Warn("warn msg")

	assert.NotContains(t, buf.String(), "info msg")
	assert.Contains(t, buf.String(), "warn msg")
}

func TestNewLoggerWithWriter_DefaultFormatIsText(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(&buf, "invalid", "").Info("test message", "key", "value")

	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"), "default format is text")
	assert.Contains(t, buf.String(), "key=value")
}

func TestWithWorker(t *testing.T) {
	var buf bytes.Buffer
	WithWorker(NewLoggerWithWriter(&buf, "text", "info"), 3, "a_test.go").Info("worker_reaped")

	assert.Contains(t, buf.String(), "slot=3")
	assert.Contains(t, buf.String(), "test_file=a_test.go")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", "info"))

	slog.Info("from default logger")
	assert.Contains(t, buf.String(), "from default logger")
}

// Tail tests

func TestTail_KeepsMostRecentLines(t *testing.T) {
	tail := NewTail(3)
	for _, line := range []string{"a", "b", "c", "d", "e"} {
		tail.HandleLine(line)
	}
	assert.Equal(t, []string{"c", "d", "e"}, tail.Lines())
}

func TestTail_PartiallyFilled(t *testing.T) {
	tail := NewTail(5)
	tail.HandleLine("only")

	assert.Equal(t, []string{"only"}, tail.Lines())
	assert.Empty(t, NewTail(0).Lines())
}

func TestTail_Truncation(t *testing.T) {
	tail := NewTail(1)
	tail.HandleLine(strings.Repeat("x", MaxLineLength+100))

	line := tail.Lines()[0]
	assert.True(t, strings.HasSuffix(line, "...(truncated)"))
	assert.Len(t, line, MaxLineLength+len("...(truncated)"))
}

func TestTail_ReadFromLongLine(t *testing.T) {
	tail := NewTail(10)
	input := strings.Repeat("y", MaxLineLength*2+10) + "\nlast\n"
	_, err := tail.ReadFrom(strings.NewReader(input))
	require.NoError(t, err)

	lines := tail.Lines()
	require.Len(t, lines, 4, "three chunks and last")
	assert.Equal(t, "last", lines[3])
}

func TestTail_Failures(t *testing.T) {
	tail := NewTail(10)
	for _, line := range []string{"=== RUN   TestA", "--- FAIL: TestA (0.00s)", "ok", "panic: boom"} {
		tail.HandleLine(line)
	}
	assert.Equal(t, []string{"--- FAIL: TestA (0.00s)", "panic: boom"}, tail.Failures())
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_test.go.log")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n3\n4\n"), 0o644))

	lines, err := TailFile(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, lines)

	_, err = TailFile(filepath.Join(t.TempDir(), "missing.log"), 2)
	assert.Error(t, err)
}

func TestLogTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.log")
	require.NoError(t, os.WriteFile(path, []byte("setup done\n--- FAIL: TestX\n"), 0o644))

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")
	LogTail(logger, path, 5)
	LogTail(logger, path+".missing", 5)

	out := buf.String()
	assert.Contains(t, out, "level=WARN msg=worker_failure_line")
	assert.Contains(t, out, "FAIL: TestX")
	assert.Contains(t, out, "msg=worker_log ")
	assert.Contains(t, out, `line="setup done"`)
	assert.Contains(t, out, "worker_log_unreadable")
}

func TestLogTail_InfoLevelReportsOnlyFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.log")
	require.NoError(t, os.WriteFile(path, []byte("setup done\npanic: nil map\n"), 0o644))

	var buf bytes.Buffer
	LogTail(NewLoggerWithWriter(&buf, "text", "info"), path, 5)

	out := buf.String()
	assert.Contains(t, out, "worker_failure_line")
	assert.Contains(t, out, "panic: nil map")
	assert.NotContains(t, out, "setup done", "debug tail stays out of info logs")
}

func TestTail_Concurrent(t *testing.T) {
	tail := NewTail(10)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tail.HandleLine("concurrent line")
				_ = tail.Lines()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, tail.Lines(), 10)
}
