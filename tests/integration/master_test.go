//go:build integration

// Package integration contains end-to-end tests that build and drive the
// tork-master binary. Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireGo skips the test if the go tool is not available.
func requireGo(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not found in PATH - skipping integration test")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH - skipping integration test")
	}
}

// buildMaster compiles tork-master into a temporary directory.
func buildMaster(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "tork-master")
	out, err := exec.Command("go", "build", "-o", bin, "../../cmd/tork-master").CombinedOutput()
	require.NoError(t, err, "go build: %s", out)
	return bin
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// readLines forwards stdout lines to a channel until EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

func nextLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		require.True(t, ok, "master closed stdout early")
		return line
	case <-time.After(30 * time.Second):
		require.FailNow(t, "timed out waiting for master output")
	}
	return ""
}

func TestIntegration_MasterRunsWorkers(t *testing.T) {
	requireGo(t)
	bin := buildMaster(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lib", "helper.sh"), "echo preloaded\n")
	writeFile(t, filepath.Join(dir, "pass.sh"), "echo ok from slot $TORK_WORKER_SLOT\n")
	writeFile(t, filepath.Join(dir, "fail.sh"), "echo failing >&2\nexit 4\n")

	cmd := exec.Command(bin, "-max-workers", "1", "-log-root", "log", "-skip-preflight", "-log-format", "text")
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	lines := readLines(stdout)

	requests := []string{
		`["load",["lib"],["lib/helper.sh"]]`,
		`["test","pass.sh",[]]`,
		`["test","fail.sh",["TestNothing"]]`,
	}
	for _, req := range requests {
		_, err := io.WriteString(stdin, req+"\n")
		require.NoError(t, err)
	}

	assert.Equal(t, requests[0], nextLine(t, lines), "load ack")
	assert.Equal(t, requests[1], nextLine(t, lines), "test ack")
	pass := decode(t, nextLine(t, lines))
	assert.Equal(t, []any{"pass", "pass.sh"}, pass[:2])
	assert.Equal(t, requests[2], nextLine(t, lines), "test ack")
	fail := decode(t, nextLine(t, lines))
	assert.Equal(t, []any{"fail", "fail.sh"}, fail[:2])
	exit, ok := fail[4].(map[string]any)
	require.True(t, ok, "exit status is an object: %v", fail[4])
	assert.Equal(t, float64(4), exit["exit_code"])

	stdin.Close()
	assert.NoError(t, cmd.Wait(), "master exit")

	passLog, err := os.ReadFile(filepath.Join(dir, "log", "pass.sh.log"))
	require.NoError(t, err)
	assert.Equal(t, "preloaded\nok from slot 0\n", string(passLog))
	failLog, err := os.ReadFile(filepath.Join(dir, "log", "fail.sh.log"))
	require.NoError(t, err)
	assert.Contains(t, string(failLog), "failing")
}

func decode(t *testing.T, line string) []any {
	t.Helper()
	var event []any
	require.NoError(t, json.Unmarshal([]byte(line), &event), line)
	require.Len(t, event, 5, line)
	return event
}
