// Package ipc implements the local IPC transport (C12 item 3, spec.md
// §4.12): a domain-socket listener the companion CLI (cmd/overctl) dials,
// one newline-delimited JSON command per line, one JSON response per line
// (`{ok: bool, data?|error}`). Every command resolves to the operator's own
// acting user id (OperatorUserID) and, where no explicit session id is
// named, to that operator's unique active session via
// session.Manager.ResolveSession — the same fallback spec.md §4.7 already
// defines for every other ambiguous-session handler.
//
// Grounded on the teacher's pkg/coder/claude/mcpserver.Server accept loop
// (net.Listener.Accept in a goroutine-per-connection loop, bufio-framed
// line protocol) generalized from a TCP listener to a Unix domain socket —
// the only change the transport itself needs, since both satisfy
// net.Listener identically.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"strings"

	"overseer/internal/errs"
	"overseer/internal/intercept"
	"overseer/internal/queue"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/pkg/logx"
)

// Server is the local IPC transport.
type Server struct {
	SocketPath    string
	OperatorID    string
	Sessions      *session.Manager
	Handlers      *intercept.Handlers
	Queue         *queue.Manager
	Store         store.Store
	Log           *logx.Logger

	listener net.Listener
}

// New builds a Server. log may be nil, in which case a default logger is
// created.
func New(socketPath, operatorID string, sessions *session.Manager, h *intercept.Handlers, qm *queue.Manager, st store.Store, log *logx.Logger) *Server {
	if log == nil {
		log = logx.NewLogger("transport-ipc")
	}
	return &Server{
		SocketPath: socketPath, OperatorID: operatorID, Sessions: sessions,
		Handlers: h, Queue: qm, Store: st, Log: log,
	}
}

// response is the `{ok, data?|error}` envelope spec.md §4.12/§6 names.
type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ListenAndServe removes any stale socket file, listens, and accepts
// connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.SocketPath)

	l, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return errs.Wrap(errs.IO, "ipc.listen", err)
	}
	s.listener = l

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errs.Wrap(errs.IO, "ipc.accept", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp := s.dispatch(ctx, line)
		s.write(writer, resp)
	}
}

func (s *Server) write(w *bufio.Writer, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.Log.Error("ipc: marshal response: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.Log.Debug("ipc: write response: %v", err)
		return
	}
	_ = w.Flush()
}

func fail(err error) response {
	return response{OK: false, Error: err.Error()}
}

func ok(data interface{}) response {
	return response{OK: true, Data: data}
}

// dispatch parses and runs one command line: `list`, `approve id`,
// `reject id reason?`, `resume instruction?`, `mode <mode>`,
// `steer instruction`, `task instruction` (spec.md §4.12).
func (s *Server) dispatch(ctx context.Context, line string) response {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fail(errs.New(errs.Protocol, "ipc.dispatch", "empty command"))
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "list":
		return s.cmdList(ctx)
	case "approve":
		return s.cmdApprove(args)
	case "reject":
		return s.cmdReject(args)
	case "resume":
		return s.cmdResume(ctx, args)
	case "mode":
		return s.cmdMode(ctx, args)
	case "steer":
		return s.cmdSteer(ctx, args)
	case "task":
		return s.cmdTask(ctx, args)
	default:
		return fail(errs.New(errs.Protocol, "ipc.dispatch", "unknown command "+cmd))
	}
}

func (s *Server) cmdList(ctx context.Context) response {
	sessions, err := s.Store.Sessions().ListActive(ctx)
	if err != nil {
		return fail(errs.Wrap(errs.Internal, "ipc.list", err))
	}
	var owned []*store.Session
	for _, sess := range sessions {
		if sess.OwnerUserID == s.OperatorID {
			owned = append(owned, sess)
		}
	}
	return ok(owned)
}

func (s *Server) cmdApprove(args []string) response {
	if len(args) < 1 {
		return fail(errs.New(errs.Protocol, "ipc.approve", "usage: approve <request_id>"))
	}
	// An id with no parked handler is a no-op (intercept.ResolveApproval).
	if err := s.Handlers.ResolveApproval(args[0], true, ""); err != nil && errs.KindOf(err) != errs.NotFound {
		return fail(err)
	}
	return ok(nil)
}

func (s *Server) cmdReject(args []string) response {
	if len(args) < 1 {
		return fail(errs.New(errs.Protocol, "ipc.reject", "usage: reject <request_id> [reason]"))
	}
	reason := strings.Join(args[1:], " ")
	if err := s.Handlers.ResolveApproval(args[0], false, reason); err != nil && errs.KindOf(err) != errs.NotFound {
		return fail(err)
	}
	return ok(nil)
}

func (s *Server) cmdResume(ctx context.Context, args []string) response {
	sess, err := s.Sessions.ResolveSession(ctx, nil, s.OperatorID)
	if err != nil {
		return fail(err)
	}
	instruction := strings.Join(args, " ")
	if err := s.Handlers.ResolveWait(sess.ID, instruction); err != nil {
		return fail(err)
	}
	return ok(nil)
}

func (s *Server) cmdMode(ctx context.Context, args []string) response {
	if len(args) != 1 {
		return fail(errs.New(errs.Protocol, "ipc.mode", "usage: mode <remote|local|hybrid>"))
	}
	sess, err := s.Sessions.ResolveSession(ctx, nil, s.OperatorID)
	if err != nil {
		return fail(err)
	}
	res, err := s.Handlers.SetMode(ctx, sess.ID, s.OperatorID, store.SessionMode(args[0]))
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

func (s *Server) cmdSteer(ctx context.Context, args []string) response {
	if len(args) < 1 {
		return fail(errs.New(errs.Protocol, "ipc.steer", "usage: steer <instruction>"))
	}
	sess, err := s.Sessions.ResolveSession(ctx, nil, s.OperatorID)
	if err != nil {
		return fail(err)
	}
	msg, err := s.Queue.Steer(ctx, sess.ID, sess.ChannelID, strings.Join(args, " "), store.SourceIPC)
	if err != nil {
		return fail(err)
	}
	return ok(msg)
}

func (s *Server) cmdTask(ctx context.Context, args []string) response {
	if len(args) < 1 {
		return fail(errs.New(errs.Protocol, "ipc.task", "usage: task <instruction>"))
	}
	item, err := s.Queue.Task(ctx, nil, strings.Join(args, " "), store.SourceIPC)
	if err != nil {
		return fail(err)
	}
	return ok(item)
}
