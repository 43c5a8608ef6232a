package agentstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/childmonitor"
	"overseer/internal/config"
	"overseer/internal/intercept"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/internal/store/memory"
	"overseer/internal/transport/agentstream"
	"overseer/internal/wire"
)

// fakeDriver is a controllable wire.Driver for exercising the dispatch loop
// without spawning a real child process.
type fakeDriver struct {
	events    chan wire.AgentEvent
	resolved  chan resolveCall
	prompted  []string
}

type resolveCall struct {
	requestID string
	approved  bool
	reason    string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		events:   make(chan wire.AgentEvent, 8),
		resolved: make(chan resolveCall, 8),
	}
}

func (f *fakeDriver) Events() <-chan wire.AgentEvent { return f.events }
func (f *fakeDriver) ResolveClearance(requestID string, approved bool, reason string) error {
	f.resolved <- resolveCall{requestID, approved, reason}
	return nil
}
func (f *fakeDriver) ResolvePrompt(string, string, string) error { return nil }
func (f *fakeDriver) SendPrompt(_, text string) error            { f.prompted = append(f.prompted, text); return nil }
func (f *fakeDriver) Interrupt(string) error                     { return nil }
func (f *fakeDriver) Close() error                                { return nil }

func newHandlers(t *testing.T, st store.Store, rv *rendezvous.Manager, mgr *session.Manager) *intercept.Handlers {
	t.Helper()
	pc, err := policy.NewCache(nil)
	require.NoError(t, err)
	qm := queue.New(st)
	return intercept.New(st, mgr, rv, pc, qm, nil, nil, nil, config.Timeouts{ApprovalSeconds: 1, PromptSeconds: 1, WaitSeconds: 1}, nil)
}

func TestRunRoutesClearanceToApprovalAndBackToDriver(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rv := rendezvous.NewManager()
	mgr := session.New(st, rv, 4)
	s, err := mgr.Create(ctx, "user:1", t.TempDir(), store.ModeRemote, store.ProtocolPush, nil, nil)
	require.NoError(t, err)
	_, err = mgr.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	h := newHandlers(t, st, rv, mgr)
	driver := newFakeDriver()
	mon := childmonitor.New(mgr, nil)
	qm := queue.New(st)

	sess := agentstream.New(s.ID, "user:1", driver, h, qm, nil, mon, nil)

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	driver.events <- wire.AgentEvent{
		Kind: wire.EventClearanceRequested, RequestID: "agent-req-1", SessionID: s.ID,
		Title: "add feature", Diff: "+x\n", FilePath: "a.txt", RiskLevel: "low",
	}

	// Resolve the pending approval as the operator would via IPC.
	require.Eventually(t, func() bool {
		pending, _ := st.Approvals().ListPendingBySession(ctx, s.ID)
		return len(pending) == 1
	}, time.Second, 5*time.Millisecond)
	pending, err := st.Approvals().ListPendingBySession(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, h.ResolveApproval(pending[0].ID, true, ""))

	select {
	case rc := <-driver.resolved:
		require.Equal(t, "agent-req-1", rc.requestID)
		require.True(t, rc.approved)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolve_clearance")
	}

	close(driver.events)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stream closed")
	}
}

func TestRunTerminatesSessionOnSessionTerminatedEvent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rv := rendezvous.NewManager()
	mgr := session.New(st, rv, 4)
	s, err := mgr.Create(ctx, "user:1", t.TempDir(), store.ModeRemote, store.ProtocolPush, nil, nil)
	require.NoError(t, err)
	_, err = mgr.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	h := newHandlers(t, st, rv, mgr)
	driver := newFakeDriver()
	mon := childmonitor.New(mgr, nil)
	qm := queue.New(st)
	sess := agentstream.New(s.ID, "user:1", driver, h, qm, nil, mon, nil)

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	driver.events <- wire.AgentEvent{Kind: wire.EventSessionTerminated, SessionID: s.ID, Reason: "stream closed"}
	close(driver.events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	got, err := st.Sessions().Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionTerminated, got.Status)
}
