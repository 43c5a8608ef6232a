// Package childmonitor implements the Child Monitor (C13): the half of a
// spawned agent's lifecycle that runs after its process has already exited.
// The push driver's own read loop is the task that "awaits exit" (reading
// the child's stdout until EOF) and already emits the terminal
// wire.EventSessionTerminated onto its event channel; this package is what
// a transport's dispatch loop (internal/transport/agentstream) calls when
// that event arrives, turning it into the session-termination fan-out
// spec.md §4.7/§4.13 requires.
//
// Grounded on the teacher's agents/claude.go process-owning agent plus
// pkg/dispatch.Dispatcher's agentWg/shutdown bookkeeping: one goroutine
// owns a child, and its exit is the trigger for tearing down everything
// that was scoped to it. This package holds no state of its own beyond a
// logger — the actual ownership (the scoped context, the pending
// rendezvous entries) lives in internal/session.Manager, which is exactly
// where spec.md's arena-style ownership design (§9) says it should.
package childmonitor

import (
	"context"

	"overseer/internal/errs"
	"overseer/internal/session"
	"overseer/internal/wire"
	"overseer/pkg/logx"
)

// Monitor turns a terminal wire.AgentEvent into the session manager's
// termination fan-out and closes the driver that produced it.
type Monitor struct {
	Sessions *session.Manager
	Log      *logx.Logger
}

// New builds a Monitor. log may be nil, in which case a default logger is
// created.
func New(sessions *session.Manager, log *logx.Logger) *Monitor {
	if log == nil {
		log = logx.NewLogger("childmonitor")
	}
	return &Monitor{Sessions: sessions, Log: log}
}

// HandleTerminated reacts to a wire.EventSessionTerminated event: it marks
// the session Terminated (idempotent: a session already Terminated by an
// operator-initiated path is left alone) and closes the driver, since the
// child is already gone by the time this event exists. actingUserID is the
// session's own owner — the child process has no operator identity of its
// own to authenticate as.
func (mon *Monitor) HandleTerminated(ctx context.Context, ev wire.AgentEvent, ownerUserID string, driver wire.Driver) error {
	mon.Log.Info("session %s: child exited (%s), tearing down", ev.SessionID, ev.Reason)

	_, err := mon.Sessions.Terminate(ctx, ev.SessionID, ownerUserID, nil)
	if err != nil && errs.KindOf(err) != errs.Conflict {
		mon.Log.Error("session %s: termination fan-out failed: %v", ev.SessionID, err)
	}

	if driver != nil {
		if cerr := driver.Close(); cerr != nil {
			mon.Log.Debug("session %s: driver close: %v", ev.SessionID, cerr)
		}
	}
	return err
}
