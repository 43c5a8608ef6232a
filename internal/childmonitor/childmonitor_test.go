package childmonitor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"overseer/internal/childmonitor"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/internal/store/memory"
	"overseer/internal/wire"
)

type fakeDriver struct {
	closed bool
}

func (f *fakeDriver) Events() <-chan wire.AgentEvent             { return nil }
func (f *fakeDriver) ResolveClearance(string, bool, string) error { return nil }
func (f *fakeDriver) ResolvePrompt(string, string, string) error  { return nil }
func (f *fakeDriver) SendPrompt(string, string) error             { return nil }
func (f *fakeDriver) Interrupt(string) error                      { return nil }
func (f *fakeDriver) Close() error                                { f.closed = true; return nil }

func newSession(t *testing.T) (*session.Manager, *store.Session) {
	t.Helper()
	st := memory.New()
	rv := rendezvous.NewManager()
	mgr := session.New(st, rv, 4)
	ctx := context.Background()
	s, err := mgr.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPush, nil, nil)
	require.NoError(t, err)
	_, err = mgr.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)
	return mgr, s
}

func TestHandleTerminatedMarksSessionTerminated(t *testing.T) {
	mgr, s := newSession(t)
	mon := childmonitor.New(mgr, nil)
	driver := &fakeDriver{}

	err := mon.HandleTerminated(context.Background(), wire.AgentEvent{
		Kind: wire.EventSessionTerminated, SessionID: s.ID, Reason: "stream closed",
	}, "user:1", driver)
	require.NoError(t, err)
	require.True(t, driver.closed)

	got, err := mgr.ResolveSession(context.Background(), &s.ID, "user:1")
	require.NoError(t, err)
	require.Equal(t, store.SessionTerminated, got.Status)
}

func TestHandleTerminatedIdempotentOnAlreadyTerminated(t *testing.T) {
	mgr, s := newSession(t)
	mon := childmonitor.New(mgr, nil)

	_, err := mgr.Terminate(context.Background(), s.ID, "user:1", nil)
	require.NoError(t, err)

	err = mon.HandleTerminated(context.Background(), wire.AgentEvent{
		Kind: wire.EventSessionTerminated, SessionID: s.ID,
	}, "user:1", &fakeDriver{})
	require.NoError(t, err)
}
