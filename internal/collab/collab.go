// Package collab defines the narrow collaborator interfaces the core
// depends on but does not implement: chat posting, audit logging, and
// config access (spec.md §1's explicitly-out-of-scope list; see SPEC_FULL.md
// §6). The core only ever imports this package's interfaces, never a
// concrete chat SDK or JSONL writer — pkg/chat and pkg/eventlog are default
// in-process implementations cmd/overseerd wires in, not dependencies of
// internal/intercept or internal/session.
package collab

import "context"

// ApprovalPost is the payload an approval, continuation prompt, or stall
// escalation posts to the chat collaborator. Mirrors pkg/chat.ApprovalPost.
type ApprovalPost struct {
	ChannelID   string
	Title       string
	Description string
	DiffContent string
	FilePath    string
	RiskLevel   string
}

// ChatPoster is the collaborator boundary for posting to an operator chat
// surface (e.g. Slack). Returns a chat-thread timestamp the caller may
// persist as Session.thread_ts.
type ChatPoster interface {
	PostApprovalRequest(ctx context.Context, req ApprovalPost) (chatTS string, err error)
	PostMessage(ctx context.Context, channelID, text string) error
}

// AuditEvent is one structured record written through AuditLogger. Mirrors
// pkg/eventlog.Event.
type AuditEvent struct {
	SessionID string
	Kind      string
	Detail    map[string]any
}

// AuditLogger is the collaborator boundary for the audit trail.
type AuditLogger interface {
	WriteEvent(ctx context.Context, event AuditEvent) error
}

// NoopChatPoster discards everything; cmd/overseerd wires this in when no
// chat collaborator is configured (spec.md §6: Local-mode sessions post
// nothing).
type NoopChatPoster struct{}

func (NoopChatPoster) PostApprovalRequest(context.Context, ApprovalPost) (string, error) {
	return "", nil
}

func (NoopChatPoster) PostMessage(context.Context, string, string) error { return nil }

// NoopAuditLogger discards every event.
type NoopAuditLogger struct{}

func (NoopAuditLogger) WriteEvent(context.Context, AuditEvent) error { return nil }
