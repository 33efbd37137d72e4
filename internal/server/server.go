// Package server reads client requests line by line and dispatches them to
// a Handler.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/randomizedcoder/go-tork/internal/protocol"
)

// Request verbs.
const (
	VerbLoad = "load"
	VerbTest = "test"
	VerbStop = "stop"
	VerbQuit = "quit"
)

// maxLineSize bounds a single request line.
const maxLineSize = 1024 * 1024

// Handler executes decoded requests. Handlers write their own
// acknowledgements, so a failed request is never acknowledged.
type Handler interface {
	Load(ctx context.Context, cmd *protocol.Command, paths, files []string) error
	Test(ctx context.Context, cmd *protocol.Command, testFile string, testNames []string) error
	Stop(ctx context.Context) error
}

// Server is the client loop.
type Server struct {
	handler Handler
	logger  *slog.Logger
}

// New creates a server dispatching to h.
func New(h Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: h, logger: logger}
}

// Serve reads requests from in until EOF, a quit request, or ctx is done.
// Malformed lines, unknown verbs, and handler failures are logged and the
// loop carries on.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			s.logger.Warn("malformed_request", "line", line, "error", err)
			continue
		}
		verb, _ := cmd.Verb()
		if verb == VerbQuit {
			s.logger.Debug("client_quit")
			return nil
		}
		if err := s.dispatch(ctx, verb, cmd); err != nil {
			s.logger.Error("request_failed", "verb", verb, "line", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	s.logger.Debug("client_eof")
	return nil
}

func (s *Server) dispatch(ctx context.Context, verb string, cmd *protocol.Command) error {
	switch verb {
	case VerbLoad:
		var paths, files []string
		if err := cmd.Arg(0, &paths); err != nil {
			return err
		}
		if err := cmd.Arg(1, &files); err != nil {
			return err
		}
		return s.handler.Load(ctx, cmd, paths, files)

	case VerbTest:
		var testFile string
		var testNames []string
		if err := cmd.Arg(0, &testFile); err != nil {
			return err
		}
		if err := cmd.Arg(1, &testNames); err != nil {
			return err
		}
		if testFile == "" {
			return fmt.Errorf("test: missing test file")
		}
		return s.handler.Test(ctx, cmd, testFile, testNames)

	case VerbStop:
		return s.handler.Stop(ctx)

	default:
		return fmt.Errorf("unknown verb %q", verb)
	}
}
