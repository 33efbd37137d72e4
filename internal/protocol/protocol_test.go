package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(`["test","pkg/a_test.go",["TestA"]]` + "\n")
	require.NoError(t, err)
	assert.Equal(t, `["test","pkg/a_test.go",["TestA"]]`, cmd.Line)

	verb, err := cmd.Verb()
	require.NoError(t, err)
	assert.Equal(t, "test", verb)

	var file string
	var names []string
	require.NoError(t, cmd.Arg(0, &file))
	require.NoError(t, cmd.Arg(1, &names))
	assert.Equal(t, "pkg/a_test.go", file)
	assert.Equal(t, []string{"TestA"}, names)

	var missing []string
	require.NoError(t, cmd.Arg(5, &missing))
	assert.Nil(t, missing)

	var wrong int
	assert.Error(t, cmd.Arg(0, &wrong))
}

func TestParseCommand_Invalid(t *testing.T) {
	for _, line := range []string{"", "not json", `{"a":1}`, `[]`, `[1,2]`} {
		_, err := ParseCommand(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestCommand_Completion(t *testing.T) {
	cmd, err := NewCommand("test", "a_test", []string{})
	require.NoError(t, err)

	event := cmd.Completion(StatusFail, 2, map[string]int{"exit_code": 1})
	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `["fail","a_test",[],2,{"exit_code":1}]`, string(data))
}

func TestClient_AckAndComplete(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(&buf)

	cmd, err := ParseCommand(`["stop"]`)
	require.NoError(t, err)
	require.NoError(t, c.Ack(cmd))
	require.NoError(t, c.Complete([]any{"pass", "x", 0}))

	assert.Equal(t, "[\"stop\"]\n[\"pass\",\"x\",0]\n", buf.String())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestClient_ConcurrentWritesStayLineAligned(t *testing.T) {
	out := &lockedBuffer{}
	c := NewClient(out)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Complete([]any{"pass", strings.Repeat("x", 100), i})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var v []any
		require.NoError(t, json.Unmarshal([]byte(line), &v), line)
	}
}
