// Package collabadapt adapts the two default in-process collaborators
// (pkg/chat.Stub, pkg/eventlog.Writer) to the internal/collab interfaces
// cmd/overseerd wires into intercept.Handlers. Neither default
// implementation satisfies collab.ChatPoster/AuditLogger directly — Stub's
// methods take pkg/chat's own ApprovalPost type and Writer's WriteEvent
// takes no context — so this package holds the two small wrapper types
// that close the gap, the way the teacher's cmd/maestro bootstrap wires its
// own default collaborators behind the package's narrow interfaces rather
// than changing either concrete type to match.
package collabadapt

import (
	"context"

	"overseer/internal/collab"
	"overseer/pkg/chat"
	"overseer/pkg/eventlog"
)

// ChatStub adapts *chat.Stub to collab.ChatPoster.
type ChatStub struct {
	Stub *chat.Stub
}

var _ collab.ChatPoster = ChatStub{}

func (c ChatStub) PostApprovalRequest(ctx context.Context, req collab.ApprovalPost) (string, error) {
	return c.Stub.PostApprovalRequest(ctx, chat.ApprovalPost{
		ChannelID:   req.ChannelID,
		Title:       req.Title,
		Description: req.Description,
		DiffContent: req.DiffContent,
		FilePath:    req.FilePath,
		RiskLevel:   req.RiskLevel,
	})
}

func (c ChatStub) PostMessage(ctx context.Context, channelID, text string) error {
	return c.Stub.PostMessage(ctx, channelID, text)
}

// EventLogWriter adapts *eventlog.Writer to collab.AuditLogger.
type EventLogWriter struct {
	Writer *eventlog.Writer
}

var _ collab.AuditLogger = EventLogWriter{}

func (e EventLogWriter) WriteEvent(_ context.Context, event collab.AuditEvent) error {
	return e.Writer.WriteEvent(eventlog.Event{
		SessionID: event.SessionID,
		Kind:      event.Kind,
		Detail:    event.Detail,
	})
}
