package collab

import (
	"context"
	"time"

	"overseer/pkg/chat"
	"overseer/pkg/eventlog"
)

// ChatStub adapts pkg/chat.Stub to the ChatPoster interface.
type ChatStub struct {
	stub *chat.Stub
}

func NewChatStub(stub *chat.Stub) *ChatStub {
	return &ChatStub{stub: stub}
}

func (c *ChatStub) PostApprovalRequest(ctx context.Context, req ApprovalPost) (string, error) {
	return c.stub.PostApprovalRequest(ctx, chat.ApprovalPost{
		ChannelID:   req.ChannelID,
		Title:       req.Title,
		Description: req.Description,
		DiffContent: req.DiffContent,
		FilePath:    req.FilePath,
		RiskLevel:   req.RiskLevel,
	})
}

func (c *ChatStub) PostMessage(ctx context.Context, channelID, text string) error {
	return c.stub.PostMessage(ctx, channelID, text)
}

// EventLogger adapts pkg/eventlog.Writer to the AuditLogger interface.
type EventLogger struct {
	writer *eventlog.Writer
}

func NewEventLogger(writer *eventlog.Writer) *EventLogger {
	return &EventLogger{writer: writer}
}

func (e *EventLogger) WriteEvent(ctx context.Context, event AuditEvent) error {
	return e.writer.WriteEvent(eventlog.Event{
		Time:      time.Now().UTC(),
		SessionID: event.SessionID,
		Kind:      event.Kind,
		Detail:    event.Detail,
	})
}
