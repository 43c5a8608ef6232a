package pull_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/agentdriver/pull"
	"overseer/internal/errs"
	"overseer/internal/wire"
)

func TestEmitDeliversOnEventsChannel(t *testing.T) {
	d := pull.New()
	defer d.Close()

	d.Emit(wire.AgentEvent{Kind: wire.EventStatusUpdated, SessionID: "session:1", Message: "hi"})

	select {
	case ev := <-d.Events():
		require.Equal(t, wire.EventStatusUpdated, ev.Kind)
		require.Equal(t, "hi", ev.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestSendPromptUnsupported(t *testing.T) {
	d := pull.New()
	defer d.Close()

	err := d.SendPrompt("session:1", "text")
	require.Error(t, err)
	require.Equal(t, errs.Protocol, errs.KindOf(err))
}

func TestInterruptAlwaysSucceeds(t *testing.T) {
	d := pull.New()
	defer d.Close()

	require.NoError(t, d.Interrupt("session:unknown"))
}

func TestResolveClearanceRejectsEmptyID(t *testing.T) {
	d := pull.New()
	defer d.Close()

	err := d.ResolveClearance("", true, "")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	d := pull.New()
	require.NoError(t, d.Close())

	require.NotPanics(t, func() {
		d.Emit(wire.AgentEvent{Kind: wire.EventStatusUpdated})
	})
}
