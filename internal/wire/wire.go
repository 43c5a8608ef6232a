// Package wire defines the event/command vocabulary both agent driver
// implementations (C6) reduce their wire protocol to (spec.md §4.6). It is
// new: the teacher's pkg/coder/claude speaks a single concrete protocol
// (Claude Code's stream-json), not a driver-agnostic event sum type, so
// this package is grounded on the teacher's proto.AgentMsg /
// proto.MsgType enum idiom in pkg/proto (a closed set of message kinds
// carried over a single struct) generalized into a tagged-union-by-struct
// shape idiomatic Go prefers over an actual sum type.
package wire

import "time"

// EventKind tags which AgentEvent variant is populated.
type EventKind string

const (
	EventClearanceRequested EventKind = "clearance_requested"
	EventStatusUpdated      EventKind = "status_updated"
	EventPromptForwarded    EventKind = "prompt_forwarded"
	EventHeartbeatReceived  EventKind = "heartbeat_received"
	EventSessionTerminated  EventKind = "session_terminated"
)

// AgentEvent is the single shape every driver implementation normalizes
// into; only the fields relevant to Kind are populated.
type AgentEvent struct {
	Kind EventKind

	// ClearanceRequested
	RequestID   string
	SessionID   string
	Title       string
	Description string
	Diff        string
	FilePath    string
	RiskLevel   string

	// StatusUpdated
	Message string

	// PromptForwarded
	PromptID   string
	PromptText string
	PromptType string

	// HeartbeatReceived
	Progress string

	// SessionTerminated
	ExitCode *int
	Reason   string

	ReceivedAt time.Time
}

// CommandKind tags which AgentCommand variant is populated.
type CommandKind string

const (
	CommandResolveClearance CommandKind = "resolve_clearance"
	CommandResolvePrompt    CommandKind = "resolve_prompt"
	CommandSendPrompt       CommandKind = "send_prompt"
	CommandInterrupt        CommandKind = "interrupt"
)

// AgentCommand is the sink-side counterpart to AgentEvent.
type AgentCommand struct {
	Kind CommandKind

	// resolve_clearance
	RequestID string
	Approved  bool
	Reason    string

	// resolve_prompt
	PromptID    string
	Decision    string
	Instruction string

	// send_prompt / interrupt
	SessionID string
	Text      string
}

// Driver is the one interface both the pull and push agent drivers
// satisfy. Events flows from the agent to the supervisor on the channel
// returned by Events(); commands flow the other way through the methods.
// Every method is idempotent on an unknown id: it returns errs.NotFound
// rather than panicking, except Interrupt, whose unknown-id case is
// success (cancellation is defined as idempotent, spec.md §4.6 T024).
type Driver interface {
	Events() <-chan AgentEvent

	ResolveClearance(requestID string, approved bool, reason string) error
	ResolvePrompt(promptID, decision, instruction string) error
	SendPrompt(sessionID, text string) error
	Interrupt(sessionID string) error

	Close() error
}
