package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"overseer/internal/errs"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/internal/store/memory"
)

func newManager(t *testing.T, maxConcurrent int) (*session.Manager, store.Store, *rendezvous.Manager) {
	t.Helper()
	st := memory.New()
	rv := rendezvous.NewManager()
	return session.New(st, rv, maxConcurrent), st, rv
}

func TestCreateStartsInCreatedStatus(t *testing.T) {
	m, _, _ := newManager(t, 4)

	s, err := m.Create(context.Background(), "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.SessionCreated, s.Status)
	require.NotEmpty(t, s.ID)
}

func TestCreateRejectsEmptyOwner(t *testing.T) {
	m, _, _ := newManager(t, 4)

	_, err := m.Create(context.Background(), "", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.Error(t, err)
	require.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestActivateEnforcesConcurrencyCap(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 1)

	s1, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s1.ID, "user:1")
	require.NoError(t, err)

	s2, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s2.ID, "user:1")
	require.Error(t, err)
	require.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestActivateRejectsWrongOwner(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)

	_, err = m.Activate(ctx, s.ID, "user:2")
	require.Error(t, err)
	require.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestPauseResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	paused, err := m.Pause(ctx, s.ID, "user:1")
	require.NoError(t, err)
	require.Equal(t, store.SessionPaused, paused.Status)

	resumed, err := m.Resume(ctx, s.ID, "user:1")
	require.NoError(t, err)
	require.Equal(t, store.SessionActive, resumed.Status)
}

func TestCreatedToPausedIsRejected(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)

	_, err = m.Pause(ctx, s.ID, "user:1")
	require.Error(t, err)
	require.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestSetThreadTSIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)

	s, err = m.SetThreadTS(ctx, s.ID, "user:1", "1700000000.000100")
	require.NoError(t, err)
	require.Equal(t, "1700000000.000100", *s.ThreadTS)

	_, err = m.SetThreadTS(ctx, s.ID, "user:1", "1700000000.000200")
	require.Error(t, err)
	require.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestResolveSessionByExplicitID(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)

	id := s.ID
	got, err := m.ResolveSession(ctx, &id, "user:1")
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)
}

func TestResolveSessionByExplicitIDRejectsWrongOwner(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)

	id := s.ID
	_, err = m.ResolveSession(ctx, &id, "user:2")
	require.Error(t, err)
	require.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestResolveSessionFallsBackToUniqueActive(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	got, err := m.ResolveSession(ctx, nil, "user:1")
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)
}

func TestResolveSessionNoActiveIsNotFound(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	_, err := m.ResolveSession(ctx, nil, "user:1")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestResolveSessionAmbiguousWithoutExplicitID(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s1, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s1.ID, "user:1")
	require.NoError(t, err)

	s2, err := m.Create(ctx, "user:1", "/ws2", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s2.ID, "user:1")
	require.NoError(t, err)

	_, err = m.ResolveSession(ctx, nil, "user:1")
	require.Error(t, err)
	require.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestTerminateFromActiveMarksTerminatedAt(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	terminated, err := m.Terminate(ctx, s.ID, "user:1", nil)
	require.NoError(t, err)
	require.Equal(t, store.SessionTerminated, terminated.Status)
	require.NotNil(t, terminated.TerminatedAt)
}

func TestTerminateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	first, err := m.Terminate(ctx, s.ID, "user:1", nil)
	require.NoError(t, err)

	second, err := m.Terminate(ctx, s.ID, "user:1", nil)
	require.NoError(t, err)
	require.Equal(t, first.TerminatedAt, second.TerminatedAt)
}

func TestTerminateCancelsScope(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	done, ok := m.Done(s.ID)
	require.True(t, ok)

	_, err = m.Terminate(ctx, s.ID, "user:1", nil)
	require.NoError(t, err)

	select {
	case <-done:
	default:
		t.Fatal("expected scope to be cancelled on terminate")
	}
	require.False(t, m.HasScope(s.ID))
}

func TestTerminateResolvesPendingApprovalsAsInterrupted(t *testing.T) {
	ctx := context.Background()
	m, st, rv := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	approval := &store.ApprovalRequest{
		ID: "req:1", SessionID: s.ID, Title: "t", DiffContent: "d",
		FilePath: "f.txt", RiskLevel: store.RiskLow, Status: store.ApprovalPending,
		OriginalHash: store.NewFileSentinel,
	}
	require.NoError(t, st.Approvals().Create(ctx, approval))

	ch := rv.Register(rendezvous.Approval, approval.ID)

	_, err = m.Terminate(ctx, s.ID, "user:1", nil)
	require.NoError(t, err)

	decision, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "interrupted", decision)

	got, err := st.Approvals().Get(ctx, approval.ID)
	require.NoError(t, err)
	require.Equal(t, store.ApprovalInterrupted, got.Status)
}

func TestInterruptThenRestartSetsRestartOf(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	interrupted, err := m.Interrupt(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionInterrupted, interrupted.Status)

	restarted, err := m.Restart(ctx, s.ID, "user:1")
	require.NoError(t, err)
	require.Equal(t, store.SessionCreated, restarted.Status)
	require.Equal(t, s.ID, *restarted.RestartOf)
}

func TestRestartRejectsNonInterruptedSession(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, 4)

	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)

	_, err = m.Restart(ctx, s.ID, "user:1")
	require.Error(t, err)
	require.Equal(t, errs.Conflict, errs.KindOf(err))
}

func TestRecoverOnStartupInterruptsActiveSessions(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	rv := rendezvous.NewManager()

	m := session.New(st, rv, 4)
	s, err := m.Create(ctx, "user:1", "/ws", store.ModeLocal, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	prompt := &store.ContinuationPrompt{
		ID: "prompt:1", SessionID: s.ID, PromptText: "continue?",
		PromptType: store.PromptContinuation,
	}
	require.NoError(t, st.Prompts().Create(ctx, prompt))
	ch := rv.Register(rendezvous.Prompt, prompt.ID)

	require.NoError(t, session.RecoverOnStartup(ctx, st, rv))

	got, err := st.Sessions().Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionInterrupted, got.Status)

	gotPrompt, err := st.Prompts().Get(ctx, prompt.ID)
	require.NoError(t, err)
	require.NotNil(t, gotPrompt.ResolvedAt)
	require.Equal(t, store.DecisionStop, *gotPrompt.Decision)

	decision, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "interrupted", decision)
}
