package push_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/agentdriver/push"
	"overseer/internal/wire"
)

// fakeAgentScript is a tiny shell "agent" that performs the push-model
// handshake: emit a ready line, read the initialize request, reply with
// initialized, then read and discard the prompt/send line before emitting
// one clearance/request event and exiting.
const fakeAgentScript = `
echo 'ready'
read -r _init
echo '{"method":"initialized"}'
read -r _prompt
echo '{"method":"clearance/request","params":{"request_id":"req:1","session_id":"session:1","title":"t","risk_level":"low"}}'
`

func TestSpawnHandshakeAndClearanceEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv, err := push.Spawn(ctx, push.Config{
		Command:       "/bin/sh",
		Args:          []string{"-c", fakeAgentScript},
		WorkspaceRoot: t.TempDir(),
		ReadyTimeout:  2 * time.Second,
		InitTimeout:   2 * time.Second,
		InitialPrompt: "do the thing",
		SessionID:     "session:1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })

	select {
	case ev := <-drv.Events():
		require.Equal(t, wire.EventClearanceRequested, ev.Kind)
		require.Equal(t, "req:1", ev.RequestID)
		require.Equal(t, "session:1", ev.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for clearance event")
	}
}

func TestSpawnRejectsEmptyPrompt(t *testing.T) {
	_, err := push.Spawn(context.Background(), push.Config{
		Command:       "/bin/sh",
		Args:          []string{"-c", "echo ready"},
		WorkspaceRoot: t.TempDir(),
		ReadyTimeout:  time.Second,
		InitTimeout:   time.Second,
		InitialPrompt: "   ",
	})
	require.Error(t, err)
}

func TestSpawnFailsWhenReadyNeverArrives(t *testing.T) {
	_, err := push.Spawn(context.Background(), push.Config{
		Command:       "/bin/sh",
		Args:          []string{"-c", "sleep 5"},
		WorkspaceRoot: t.TempDir(),
		ReadyTimeout:  50 * time.Millisecond,
		InitTimeout:   time.Second,
		InitialPrompt: "hi",
	})
	require.Error(t, err)
}

func TestInterruptCancelsChild(t *testing.T) {
	drv, err := push.Spawn(context.Background(), push.Config{
		Command:       "/bin/sh",
		Args:          []string{"-c", fakeAgentScript + "\nread -r _trailer"},
		WorkspaceRoot: t.TempDir(),
		ReadyTimeout:  2 * time.Second,
		InitTimeout:   2 * time.Second,
		InitialPrompt: "hi",
		SessionID:     "session:1",
	})
	require.NoError(t, err)

	<-drv.Events() // clearance/request

	require.NoError(t, drv.Interrupt("session:1"))

	select {
	case ev, ok := <-drv.Events():
		if ok {
			require.Equal(t, wire.EventSessionTerminated, ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected events channel to close after interrupt")
	}
}

func TestEnvBuildOnlyIncludesAllowlist(t *testing.T) {
	env := push.BuildChildEnv("OVERSEER_SESSION=session:1")
	found := false
	for _, kv := range env {
		if kv == "OVERSEER_SESSION=session:1" {
			found = true
		}
		require.NotContains(t, kv, "SECRET")
	}
	require.True(t, found)
}
