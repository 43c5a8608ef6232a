// Package stdio implements the Pull driver's stdio ingress (spec.md
// §4.12.1): a single connection, line-oriented JSON-RPC request/response,
// used when the agent invokes the supervisor as a subprocess.
//
// Grounded on the teacher's mcpserver.Server.handleConnection read loop
// (bufio.Reader.ReadBytes('\n') feeding a JSON-RPC dispatch switch),
// adapted from a TCP listener accepting many connections to a single
// stdin/stdout pair — a subprocess has exactly one peer.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"overseer/internal/transport/rpc"
	"overseer/pkg/logx"
)

// Server serves one session's worth of tool calls over stdin/stdout.
type Server struct {
	Dispatcher *rpc.Dispatcher
	In         io.Reader
	Out        io.Writer
	Log        *logx.Logger
}

// New builds a Server. log may be nil, in which case a default logger is
// created.
func New(d *rpc.Dispatcher, in io.Reader, out io.Writer, log *logx.Logger) *Server {
	if log == nil {
		log = logx.NewLogger("transport-stdio")
	}
	return &Server{Dispatcher: d, In: in, Out: out, Log: log}
}

// Serve reads one JSON-RPC request per line until EOF or ctx is cancelled.
// A blank line is ignored; a parse error produces a JSON-RPC error response
// on the same connection rather than closing it (framing errors only close
// the connection, per spec.md §7 — a parse error here is per-request, not
// per-connection, matching the teacher's behaviour).
func (s *Server) Serve(ctx context.Context) error {
	reader := bufio.NewReader(s.In)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if resp := s.Dispatcher.Handle(ctx, line); resp != nil {
				s.write(resp)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *Server) write(resp *rpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.Log.Error("marshal response: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := s.Out.Write(data); err != nil {
		s.Log.Debug("write response: %v", err)
	}
}
