package collab_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"overseer/internal/collab"
	"overseer/pkg/chat"
	"overseer/pkg/eventlog"
)

func TestNoopChatPosterDiscardsSilently(t *testing.T) {
	var p collab.ChatPoster = collab.NoopChatPoster{}
	ts, err := p.PostApprovalRequest(context.Background(), collab.ApprovalPost{Title: "t"})
	require.NoError(t, err)
	require.Empty(t, ts)
	require.NoError(t, p.PostMessage(context.Background(), "C1", "hi"))
}

func TestNoopAuditLoggerDiscardsSilently(t *testing.T) {
	var a collab.AuditLogger = collab.NoopAuditLogger{}
	require.NoError(t, a.WriteEvent(context.Background(), collab.AuditEvent{Kind: "test"}))
}

func TestChatStubAdapterPostsThrough(t *testing.T) {
	stub := chat.NewStub(nil)
	poster := collab.NewChatStub(stub)

	ts, err := poster.PostApprovalRequest(context.Background(), collab.ApprovalPost{
		ChannelID: "C1", Title: "Add helper", FilePath: "f.go", RiskLevel: "low",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ts)
	require.Len(t, stub.Sent(), 1)
}

func TestEventLoggerAdapterWritesThrough(t *testing.T) {
	dir := t.TempDir()
	w, err := eventlog.NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	logger := collab.NewEventLogger(w)
	require.NoError(t, logger.WriteEvent(context.Background(), collab.AuditEvent{
		SessionID: "session:1", Kind: "approval_requested", Detail: map[string]any{"file": "f.go"},
	}))

	files, err := eventlog.ListLogFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Clean(files[0]))
	require.NoError(t, err)
	require.Contains(t, string(data), "approval_requested")
}
