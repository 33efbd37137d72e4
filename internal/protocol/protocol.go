// Package protocol defines the line-delimited messages exchanged with the
// controlling client.
//
// Requests are JSON arrays, one per line, whose first element is the verb:
//
//	["load", ["lib"], ["lib/setup.sh"]]
//	["test", "pkg/foo_test.go", ["TestA"]]
//	["stop"]
//	["quit"]
//
// Every handled request is acknowledged by echoing its raw line. When a
// worker exits, a completion event is written: the request tokens with the
// verb replaced by "pass" or "fail", followed by the worker slot and the
// exit status.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Status tags carried by completion events.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Command is one decoded client request.
type Command struct {
	// Line is the raw request line, echoed back as the acknowledgement.
	Line string
	// Tokens are the request elements, kept raw so they echo unchanged.
	Tokens []json.RawMessage
}

// ParseCommand decodes a request line. The line must be a non-empty JSON
// array whose first element is a string verb.
func ParseCommand(line string) (*Command, error) {
	line = strings.TrimRight(line, "\r\n")
	var tokens []json.RawMessage
	if err := json.Unmarshal([]byte(line), &tokens); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if len(tokens) == 0 {
		return nil, errors.New("decode command: empty array")
	}
	cmd := &Command{Line: line, Tokens: tokens}
	if _, err := cmd.Verb(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// NewCommand encodes args as a request, mainly for tests and tools.
func NewCommand(verb string, args ...any) (*Command, error) {
	elems := append([]any{verb}, args...)
	data, err := json.Marshal(elems)
	if err != nil {
		return nil, err
	}
	return ParseCommand(string(data))
}

// Verb returns the command name.
func (c *Command) Verb() (string, error) {
	var verb string
	if err := json.Unmarshal(c.Tokens[0], &verb); err != nil {
		return "", fmt.Errorf("decode command verb: %w", err)
	}
	return verb, nil
}

// Arg decodes the i-th argument (the element after the verb at index i)
// into v. A missing argument leaves v untouched.
func (c *Command) Arg(i int, v any) error {
	idx := i + 1
	if idx >= len(c.Tokens) {
		return nil
	}
	if err := json.Unmarshal(c.Tokens[idx], v); err != nil {
		return fmt.Errorf("decode argument %d: %w", i, err)
	}
	return nil
}

// Completion returns the completion event tokens for this command.
func (c *Command) Completion(status string, slot int, exit any) []any {
	out := make([]any, 0, len(c.Tokens)+2)
	out = append(out, status)
	for _, tok := range c.Tokens[1:] {
		out = append(out, tok)
	}
	return append(out, slot, exit)
}

// Client writes acknowledgements and completion events. Writes from the
// request flow and from the reaper are serialised so lines never interleave.
type Client struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewClient wraps w.
func NewClient(w io.Writer) *Client {
	return &Client{w: bufio.NewWriter(w)}
}

// Ack echoes the command line.
func (c *Client) Ack(cmd *Command) error {
	return c.writeLine([]byte(cmd.Line))
}

// Complete writes a completion event as one JSON line.
func (c *Client) Complete(event []any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	return c.writeLine(data)
}

func (c *Client) writeLine(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.w.Write(data); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}
