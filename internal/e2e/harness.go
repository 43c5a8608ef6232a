// Package e2e exercises spec.md §8's six end-to-end scenarios
// (Approve-and-apply, Reject-with-reason, Patch-conflict, Stall-escalation,
// Offline-queue-drain, Crash-recovery) against the real in-process
// component graph (memory store, session.Manager, rendezvous.Manager,
// intercept.Handlers, queue.Manager, stall.Supervisor) and a fake driver
// standing in for a spawned agent.
//
// Grounded on the teacher's cmd/maestro/e2e_test.go: a harness struct
// wiring the same components production code wires, built once per test
// and driven through a named scenario function, rather than mocking any
// individual collaborator.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/config"
	"overseer/internal/intercept"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/stall"
	"overseer/internal/store"
	"overseer/internal/store/memory"
)

// harness wires one in-memory copy of the whole non-transport component
// graph, the way cmd/overseerd wires the real one.
type harness struct {
	t        *testing.T
	ctx      context.Context
	store    store.Store
	rendez   *rendezvous.Manager
	sessions *session.Manager
	queue    *queue.Manager
	handlers *intercept.Handlers
	stall    *stall.Supervisor
}

func newHarness(t *testing.T, timeouts config.Timeouts) *harness {
	t.Helper()
	st := memory.New()
	rv := rendezvous.NewManager()
	mgr := session.New(st, rv, 4)
	pc, err := policy.NewCache(nil)
	require.NoError(t, err)
	qm := queue.New(st)
	h := intercept.New(st, mgr, rv, pc, qm, nil, nil, nil, timeouts, nil)

	return &harness{
		t: t, ctx: context.Background(), store: st, rendez: rv,
		sessions: mgr, queue: qm, handlers: h,
	}
}

// createActiveSession creates and activates one Pull-mode session owned by
// ownerUserID, the starting point of every scenario below.
func (h *harness) createActiveSession(ownerUserID string) *store.Session {
	h.t.Helper()
	s, err := h.sessions.Create(h.ctx, ownerUserID, h.t.TempDir(), store.ModeRemote, store.ProtocolPull, nil, nil)
	require.NoError(h.t, err)
	_, err = h.sessions.Activate(h.ctx, s.ID, ownerUserID)
	require.NoError(h.t, err)
	return s
}

// resolveApprovalAsync resolves requestID after a short delay on its own
// goroutine, simulating an operator clicking Approve/Reject while the
// agent's Approval call is parked on the rendezvous wait.
func resolveApprovalAsync(t *testing.T, h *harness, requestID string, approved bool, reason string) {
	t.Helper()
	go func() {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, h.handlers.ResolveApproval(requestID, approved, reason))
	}()
}
