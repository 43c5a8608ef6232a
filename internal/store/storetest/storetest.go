// Package storetest runs the same behavioral suite against any store.Store
// implementation, so the sqlite and memory backends are held to identical
// semantics (spec.md §4.1 requires both to satisfy the same contract).
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/ids"
	"overseer/internal/store"
)

func newSession(id string) *store.Session {
	now := time.Now().UTC()
	return &store.Session{
		ID:                 id,
		OwnerUserID:        "U123",
		WorkspaceRoot:      "/work/proj",
		Status:             store.SessionCreated,
		Mode:               store.ModeRemote,
		ProtocolMode:       store.ProtocolPull,
		ConnectivityStatus: store.ConnectivityOnline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Run exercises every repository of store against the shared behavioral
// contract. Call it from each backend's own _test.go with a fresh Store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("session create get update delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))

		require.NoError(t, s.Sessions().Create(ctx, sess))

		got, err := s.Sessions().Get(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, sess.OwnerUserID, got.OwnerUserID)
		require.Equal(t, store.SessionCreated, got.Status)

		got.Status = store.SessionActive
		got.UpdatedAt = time.Now().UTC()
		require.NoError(t, s.Sessions().Update(ctx, got))

		got2, err := s.Sessions().Get(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, store.SessionActive, got2.Status)

		require.NoError(t, s.Sessions().Delete(ctx, sess.ID))
		_, err = s.Sessions().Get(ctx, sess.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("session get missing returns not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Sessions().Get(context.Background(), "session:missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("session update missing returns not found", func(t *testing.T) {
		s := newStore(t)
		sess := newSession(ids.New(ids.PrefixSession))
		err := s.Sessions().Update(context.Background(), sess)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("count active and list active", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		active := newSession(ids.New(ids.PrefixSession))
		active.Status = store.SessionActive
		require.NoError(t, s.Sessions().Create(ctx, active))

		paused := newSession(ids.New(ids.PrefixSession))
		paused.Status = store.SessionPaused
		require.NoError(t, s.Sessions().Create(ctx, paused))

		n, err := s.Sessions().CountActive(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		list, err := s.Sessions().ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, active.ID, list[0].ID)
	})

	t.Run("delete session cascades to owned entities", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))
		require.NoError(t, s.Sessions().Create(ctx, sess))

		approval := &store.ApprovalRequest{
			ID: ids.New(ids.PrefixApproval), SessionID: sess.ID, Title: "add handler",
			DiffContent: "diff", FilePath: "a.go", RiskLevel: store.RiskLow,
			Status: store.ApprovalPending, OriginalHash: store.NewFileSentinel,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Approvals().Create(ctx, approval))

		prompt := &store.ContinuationPrompt{
			ID: ids.New(ids.PrefixPrompt), SessionID: sess.ID, PromptText: "continue?",
			PromptType: store.PromptContinuation, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Prompts().Create(ctx, prompt))

		alert := &store.StallAlert{
			ID: ids.New(ids.PrefixStall), SessionID: sess.ID, LastActivityAt: time.Now().UTC(),
			IdleSeconds: 30, Status: store.StallPending,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.StallAlerts().Create(ctx, alert))

		checkpoint := &store.Checkpoint{
			ID: ids.New(ids.PrefixCheckpoint), SessionID: sess.ID, SessionState: []byte(`{}`),
			FileHashes: map[string]string{"a.go": "deadbeef"}, WorkspaceRoot: sess.WorkspaceRoot,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Checkpoints().Create(ctx, checkpoint))

		steer := &store.SteeringMessage{
			ID: ids.New(ids.PrefixSteering), SessionID: sess.ID, Message: "slow down",
			Source: store.SourceIPC, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Steering().Create(ctx, steer))

		require.NoError(t, s.Sessions().Delete(ctx, sess.ID))

		_, err := s.Approvals().Get(ctx, approval.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Prompts().Get(ctx, prompt.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.StallAlerts().Get(ctx, alert.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Checkpoints().Get(ctx, checkpoint.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		// Steering messages are NOT cascade-deleted (spec.md §3).
		unconsumed, err := s.Steering().ListUnconsumed(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, unconsumed, 1)
	})

	t.Run("approval request pending listing and consume", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))
		require.NoError(t, s.Sessions().Create(ctx, sess))

		a := &store.ApprovalRequest{
			ID: ids.New(ids.PrefixApproval), SessionID: sess.ID, Title: "rewrite config loader",
			DiffContent: "--- a\n+++ b\n", FilePath: "config.go", RiskLevel: store.RiskHigh,
			Status: store.ApprovalPending, OriginalHash: "abc123", CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Approvals().Create(ctx, a))

		pending, err := s.Approvals().ListPendingBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		a.Status = store.ApprovalApproved
		require.NoError(t, s.Approvals().Update(ctx, a))

		pending, err = s.Approvals().ListPendingBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Empty(t, pending)

		now := time.Now().UTC()
		a.Status = store.ApprovalConsumed
		a.ConsumedAt = &now
		require.NoError(t, s.Approvals().Update(ctx, a))

		got, err := s.Approvals().Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, store.ApprovalConsumed, got.Status)
		require.NotNil(t, got.ConsumedAt)
	})

	t.Run("continuation prompt instruction present iff refine", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))
		require.NoError(t, s.Sessions().Create(ctx, sess))

		p := &store.ContinuationPrompt{
			ID: ids.New(ids.PrefixPrompt), SessionID: sess.ID, PromptText: "still working?",
			PromptType: store.PromptContinuation, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Prompts().Create(ctx, p))

		refine := store.DecisionRefine
		instruction := "focus on the auth package first"
		p.Decision = &refine
		p.Instruction = &instruction
		require.NoError(t, s.Prompts().Update(ctx, p))

		got, err := s.Prompts().Get(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Decision)
		require.Equal(t, store.DecisionRefine, *got.Decision)
		require.NotNil(t, got.Instruction)
		require.Equal(t, instruction, *got.Instruction)
	})

	t.Run("stall alert at most one open per session", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))
		require.NoError(t, s.Sessions().Create(ctx, sess))

		first := &store.StallAlert{
			ID: ids.New(ids.PrefixStall), SessionID: sess.ID, LastActivityAt: time.Now().UTC(),
			IdleSeconds: 120, Status: store.StallPending,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.StallAlerts().Create(ctx, first))

		open, err := s.StallAlerts().GetOpenBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, first.ID, open.ID)

		first.Status = store.StallSelfRecovered
		require.NoError(t, s.StallAlerts().Update(ctx, first))

		_, err = s.StallAlerts().GetOpenBySession(ctx, sess.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("checkpoint latest by session", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))
		require.NoError(t, s.Sessions().Create(ctx, sess))

		first := &store.Checkpoint{
			ID: ids.New(ids.PrefixCheckpoint), SessionID: sess.ID, SessionState: []byte(`{"n":1}`),
			FileHashes: map[string]string{}, WorkspaceRoot: sess.WorkspaceRoot, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Checkpoints().Create(ctx, first))

		second := &store.Checkpoint{
			ID: ids.New(ids.PrefixCheckpoint), SessionID: sess.ID, SessionState: []byte(`{"n":2}`),
			FileHashes: map[string]string{}, WorkspaceRoot: sess.WorkspaceRoot,
			CreatedAt: first.CreatedAt.Add(time.Second),
		}
		require.NoError(t, s.Checkpoints().Create(ctx, second))

		latest, err := s.Checkpoints().LatestBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, second.ID, latest.ID)
	})

	t.Run("task inbox global items visible to every channel", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		devChannel := "C_DEV"
		global := &store.TaskInboxItem{
			ID: ids.New(ids.PrefixInbox), Message: "rotate creds", Source: store.SourceIPC,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Inbox().Create(ctx, global))

		scoped := &store.TaskInboxItem{
			ID: ids.New(ids.PrefixInbox), ChannelID: &devChannel, Message: "ship the PR",
			Source: store.SourceSlack, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Inbox().Create(ctx, scoped))

		otherChannel := "C_OTHER"
		items, err := s.Inbox().ListUnconsumedForChannel(ctx, otherChannel)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, global.ID, items[0].ID)

		items, err = s.Inbox().ListUnconsumedForChannel(ctx, devChannel)
		require.NoError(t, err)
		require.Len(t, items, 2)

		require.NoError(t, s.Inbox().MarkConsumed(ctx, scoped.ID))
		items, err = s.Inbox().ListUnconsumedForChannel(ctx, devChannel)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, global.ID, items[0].ID)
	})

	t.Run("steering messages fifo order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := newSession(ids.New(ids.PrefixSession))
		require.NoError(t, s.Sessions().Create(ctx, sess))

		base := time.Now().UTC()
		first := &store.SteeringMessage{ID: ids.New(ids.PrefixSteering), SessionID: sess.ID, Message: "first", Source: store.SourceIPC, CreatedAt: base}
		second := &store.SteeringMessage{ID: ids.New(ids.PrefixSteering), SessionID: sess.ID, Message: "second", Source: store.SourceIPC, CreatedAt: base.Add(time.Second)}
		require.NoError(t, s.Steering().Create(ctx, second))
		require.NoError(t, s.Steering().Create(ctx, first))

		list, err := s.Steering().ListUnconsumed(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, first.ID, list[0].ID)
		require.Equal(t, second.ID, list[1].ID)

		require.NoError(t, s.Steering().MarkConsumed(ctx, first.ID))
		list, err = s.Steering().ListUnconsumed(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, second.ID, list[0].ID)
	})

	t.Run("list terminated before cutoff", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		old := newSession(ids.New(ids.PrefixSession))
		old.Status = store.SessionTerminated
		oldTerminated := time.Now().UTC().Add(-48 * time.Hour)
		old.TerminatedAt = &oldTerminated
		require.NoError(t, s.Sessions().Create(ctx, old))

		recent := newSession(ids.New(ids.PrefixSession))
		recent.Status = store.SessionTerminated
		recentTerminated := time.Now().UTC()
		recent.TerminatedAt = &recentTerminated
		require.NoError(t, s.Sessions().Create(ctx, recent))

		cutoff := time.Now().UTC().Add(-24 * time.Hour)
		list, err := s.Sessions().ListTerminatedBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, old.ID, list[0].ID)
	})
}
