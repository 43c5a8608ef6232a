// Package pull implements the Agent Driver (C6) pull model: the agent is
// an MCP-style client that calls tools on the supervisor. Each tool call
// is an in-process invocation (spec.md §4.10 Intercept Handlers), not a
// line read off a child's stdout, so this driver is the thin glue between
// a handler's rendezvous registration and wire.AgentEvent/AgentCommand.
//
// Grounded on the teacher's pkg/coder/claude/mcpserver — an in-process MCP
// server the agent dials as a client — generalized here to a Go channel
// sink instead of a TCP listener, since the supervisor's own transport
// layer (C12) already terminates the wire protocol before reaching this
// driver.
package pull

import (
	"sync"

	"overseer/internal/errs"
	"overseer/internal/wire"
)

// Driver is the pull-model implementation of wire.Driver. Transport
// handlers (C12) call Emit to push an AgentEvent the supervisor should act
// on; intercept handlers (C10) call the Resolve*/Interrupt methods once an
// operator decision is available, and this driver has nothing further to
// do for them beyond bookkeeping — completing a rendezvous entry is the
// handler's job, reached through the same ids carried on AgentEvent.
type Driver struct {
	mu     sync.Mutex
	events chan wire.AgentEvent
	closed bool
}

func New() *Driver {
	return &Driver{events: make(chan wire.AgentEvent, 64)}
}

func (d *Driver) Events() <-chan wire.AgentEvent {
	return d.events
}

// Emit delivers ev to the event channel. Safe to call after Close only in
// the sense that it becomes a no-op rather than a panic-on-closed-channel.
func (d *Driver) Emit(ev wire.AgentEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.events <- ev
}

// ResolveClearance, ResolvePrompt, SendPrompt, and Interrupt are no-ops at
// this layer: in the pull model, completing the corresponding rendezvous
// entry (owned by C5, reached via the handler that registered it) *is* the
// resolution. This driver exists to satisfy wire.Driver uniformly and to
// carry SendPrompt's documented unsupported-operation behavior.
func (d *Driver) ResolveClearance(requestID string, approved bool, reason string) error {
	if requestID == "" {
		return errs.New(errs.NotFound, "pull.resolve_clearance", "empty request id")
	}
	return nil
}

func (d *Driver) ResolvePrompt(promptID, decision, instruction string) error {
	if promptID == "" {
		return errs.New(errs.NotFound, "pull.resolve_prompt", "empty prompt id")
	}
	return nil
}

// SendPrompt is not supported in the pull model: the agent pulls, the
// supervisor never pushes (spec.md §4.6).
func (d *Driver) SendPrompt(sessionID, text string) error {
	return errs.New(errs.Protocol, "pull.send_prompt", "send_prompt is not supported by the pull driver")
}

// Interrupt always succeeds, including for an unknown session id:
// cancellation is idempotent (spec.md §4.6 T024). In the pull model the
// actual cancellation is the session manager's per-session scope, which
// this driver has no handle to.
func (d *Driver) Interrupt(sessionID string) error {
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.events)
	return nil
}
