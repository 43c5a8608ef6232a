package intercept_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/config"
	"overseer/internal/errs"
	"overseer/internal/intercept"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/internal/store/memory"
)

func shortTimeouts() config.Timeouts {
	return config.Timeouts{ApprovalSeconds: 1, PromptSeconds: 1, WaitSeconds: 1}
}

func newHandlers(t *testing.T) (*intercept.Handlers, store.Store, *session.Manager) {
	t.Helper()
	st := memory.New()
	rv := rendezvous.NewManager()
	sm := session.New(st, rv, 10)
	qm := queue.New(st)
	pc, err := policy.NewCache(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	h := intercept.New(st, sm, rv, pc, qm, nil, nil, nil, shortTimeouts(), nil)
	return h, st, sm
}

func newActiveSession(t *testing.T, st store.Store, sm *session.Manager, owner string) *store.Session {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	s, err := sm.Create(ctx, owner, root, store.ModeRemote, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	s, err = sm.Activate(ctx, s.ID, owner)
	require.NoError(t, err)
	return s
}

func TestApprovalApprovedRoundTrip(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	resultCh := make(chan intercept.ApprovalResult, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := h.Approval(ctx, s.ID, "user:1", intercept.ApprovalInput{
			Title: "add helper", DiffContent: "+fn a(){}\n", FilePath: "new.go",
		})
		resultCh <- r
		errCh <- err
	}()

	var requestID string
	require.Eventually(t, func() bool {
		reqs, err := h.Store.Approvals().ListPendingBySession(ctx, s.ID)
		if err != nil || len(reqs) == 0 {
			return false
		}
		requestID = reqs[0].ID
		return true
	}, time.Second, time.Millisecond)

	require.NoError(t, h.ResolveApproval(requestID, true, ""))
	require.NoError(t, <-errCh)
	result := <-resultCh
	require.Equal(t, store.ApprovalApproved, result.Status)
	require.Equal(t, requestID, result.RequestID)
	require.Empty(t, result.Reason)
}

func TestApprovalRejectedCarriesReason(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	resultCh := make(chan intercept.ApprovalResult, 1)
	go func() {
		r, _ := h.Approval(ctx, s.ID, "user:1", intercept.ApprovalInput{
			Title: "risky change", DiffContent: "+x\n", FilePath: "new.go",
		})
		resultCh <- r
	}()

	var requestID string
	require.Eventually(t, func() bool {
		reqs, _ := h.Store.Approvals().ListPendingBySession(ctx, s.ID)
		if len(reqs) == 0 {
			return false
		}
		requestID = reqs[0].ID
		return true
	}, time.Second, time.Millisecond)

	require.NoError(t, h.ResolveApproval(requestID, false, "too risky"))
	result := <-resultCh
	require.Equal(t, store.ApprovalRejected, result.Status)
	require.Equal(t, "too risky", result.Reason)
}

func TestApprovalTimesOutToExpired(t *testing.T) {
	h, _, sm := newHandlers(t)
	h.Timeouts = config.Timeouts{ApprovalSeconds: 0} // effectively ~immediate
	s := newActiveSession(t, nil, sm, "user:1")

	result, err := h.Approval(context.Background(), s.ID, "user:1", intercept.ApprovalInput{
		Title: "x", DiffContent: "+x\n", FilePath: "new.go",
	})
	require.NoError(t, err)
	require.Equal(t, store.ApprovalExpired, result.Status)
}

func TestApprovalRejectsUnknownSession(t *testing.T) {
	h, _, _ := newHandlers(t)
	_, err := h.Approval(context.Background(), "session:nope", "user:1", intercept.ApprovalInput{Title: "x"})
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestApprovalRejectsWrongOwner(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	_, err := h.Approval(context.Background(), s.ID, "user:2", intercept.ApprovalInput{Title: "x"})
	require.Error(t, err)
	require.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestApplyDiffNewFileWrite(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	req := &store.ApprovalRequest{
		ID: "req:1", SessionID: s.ID, Title: "t", DiffContent: "+fn a(){}\n", FilePath: "new.go",
		RiskLevel: store.RiskLow, Status: store.ApprovalApproved, OriginalHash: store.NewFileSentinel,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Approvals().Create(ctx, req))

	result, err := h.ApplyDiff(ctx, s.ID, "user:1", req.ID, false)
	require.NoError(t, err)
	require.Equal(t, "applied", result.Status)
	require.Len(t, result.FilesWritten, 1)
	require.Equal(t, 10, result.FilesWritten[0].Bytes)

	data, err := os.ReadFile(filepath.Join(s.WorkspaceRoot, "new.go"))
	require.NoError(t, err)
	require.Equal(t, "+fn a(){}\n", string(data))

	updated, err := h.Store.Approvals().Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, store.ApprovalConsumed, updated.Status)
	require.NotNil(t, updated.ConsumedAt)
}

func TestApplyDiffAlreadyConsumed(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	req := &store.ApprovalRequest{
		ID: "req:1", SessionID: s.ID, FilePath: "new.go", DiffContent: "+x\n",
		Status: store.ApprovalConsumed, OriginalHash: store.NewFileSentinel, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Approvals().Create(ctx, req))

	result, err := h.ApplyDiff(ctx, s.ID, "user:1", req.ID, false)
	require.NoError(t, err)
	require.Equal(t, "error", result.Status)
	require.Equal(t, "already_consumed", result.ErrorCode)
}

func TestApplyDiffNotApproved(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	req := &store.ApprovalRequest{
		ID: "req:1", SessionID: s.ID, FilePath: "new.go", DiffContent: "+x\n",
		Status: store.ApprovalPending, OriginalHash: store.NewFileSentinel, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Approvals().Create(ctx, req))

	result, err := h.ApplyDiff(ctx, s.ID, "user:1", req.ID, false)
	require.NoError(t, err)
	require.Equal(t, "not_approved", result.ErrorCode)
}

func TestApplyDiffUnknownRequest(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")

	result, err := h.ApplyDiff(context.Background(), s.ID, "user:1", "req:nope", false)
	require.NoError(t, err)
	require.Equal(t, "request_not_found", result.ErrorCode)
}

func TestApplyDiffPatchConflictAndForceBypass(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	original := "line one\nline two\n"
	path := filepath.Join(s.WorkspaceRoot, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	req := &store.ApprovalRequest{
		ID: "req:1", SessionID: s.ID, FilePath: "f.txt",
		DiffContent: "@@ -1,2 +1,2 @@\n-line one\n+line ONE\n line two\n",
		Status:      store.ApprovalApproved, OriginalHash: "stale-hash", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Approvals().Create(ctx, req))

	result, err := h.ApplyDiff(ctx, s.ID, "user:1", req.ID, false)
	require.NoError(t, err)
	require.Equal(t, "patch_conflict", result.ErrorCode)

	result, err = h.ApplyDiff(ctx, s.ID, "user:1", req.ID, true)
	require.NoError(t, err)
	require.Equal(t, "applied", result.Status)
}

func TestPromptTimesOutToContinue(t *testing.T) {
	h, _, sm := newHandlers(t)
	h.Timeouts = config.Timeouts{PromptSeconds: 0}
	s := newActiveSession(t, nil, sm, "user:1")

	result, err := h.Prompt(context.Background(), s.ID, "user:1", intercept.PromptInput{PromptText: "keep going?"})
	require.NoError(t, err)
	require.Equal(t, store.DecisionContinue, result.Decision)
}

func TestPromptRefineCarriesInstruction(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	resultCh := make(chan intercept.PromptResult, 1)
	go func() {
		r, _ := h.Prompt(ctx, s.ID, "user:1", intercept.PromptInput{PromptText: "what next"})
		resultCh <- r
	}()

	var promptID string
	require.Eventually(t, func() bool {
		prompts, _ := h.Store.Prompts().ListBySession(ctx, s.ID)
		if len(prompts) == 0 {
			return false
		}
		promptID = prompts[0].ID
		return true
	}, time.Second, time.Millisecond)

	require.NoError(t, h.ResolvePrompt(promptID, store.DecisionRefine, "try the other file"))
	result := <-resultCh
	require.Equal(t, store.DecisionRefine, result.Decision)
	require.Equal(t, "try the other file", result.Instruction)
}

func TestWaitResumesWithInstruction(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	resultCh := make(chan intercept.WaitResult, 1)
	go func() {
		r, _ := h.Wait(ctx, s.ID, "user:1", 5)
		resultCh <- r
	}()

	require.Eventually(t, func() bool { return true }, 20*time.Millisecond, time.Millisecond)
	require.NoError(t, h.ResolveWait(s.ID, "go ahead"))
	result := <-resultCh
	require.Equal(t, "resumed", result.Status)
	require.Equal(t, "go ahead", result.Instruction)
}

func TestWaitZeroTimeoutBlocksUntilResolved(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	resultCh := make(chan intercept.WaitResult, 1)
	go func() {
		r, _ := h.Wait(ctx, s.ID, "user:1", 0)
		resultCh <- r
	}()

	select {
	case <-resultCh:
		t.Fatal("wait returned before being resolved")
	case <-time.After(30 * time.Millisecond):
	}
	require.NoError(t, h.ResolveWait(s.ID, "stop"))
	result := <-resultCh
	require.Equal(t, "resumed", result.Status)
	require.Equal(t, "stop", result.Instruction)
}

func TestHeartbeatResolvesPrimarySessionAndDrainsSteering(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	_, err := h.Queue.Steer(ctx, s.ID, nil, "nudge message", store.SourceSlack)
	require.NoError(t, err)

	result, err := h.Heartbeat(ctx, "user:1", []store.ProgressStep{{Label: "build", Status: "in_progress"}})
	require.NoError(t, err)
	require.Equal(t, s.ID, result.SessionID)
	require.Len(t, result.Drained, 1)
	require.Equal(t, "nudge message", result.Drained[0].Message)

	updated, err := h.Store.Sessions().Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastActivityAt)
	require.Equal(t, "build", updated.ProgressSnapshot[0].Label)
}

func TestHeartbeatRejectsUnknownStatus(t *testing.T) {
	h, _, sm := newHandlers(t)
	newActiveSession(t, nil, sm, "user:1")

	_, err := h.Heartbeat(context.Background(), "user:1", []store.ProgressStep{{Label: "x", Status: "bogus"}})
	require.Error(t, err)
	require.Equal(t, errs.Protocol, errs.KindOf(err))
}

func TestHeartbeatNoActiveSessionIsNotFound(t *testing.T) {
	h, _, _ := newHandlers(t)
	_, err := h.Heartbeat(context.Background(), "user:ghost", nil)
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestAutoCheckReadsPolicyCache(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")

	policyFile := filepath.Join(s.WorkspaceRoot, ".overseer-policy.json")
	require.NoError(t, os.WriteFile(policyFile, []byte(`{
		"enabled": true,
		"tools": ["read_file"]
	}`), 0o644))
	require.NoError(t, h.Policy.Watch(s.WorkspaceRoot, policyFile))

	result, err := h.AutoCheck(context.Background(), s.ID, "user:1", "read_file", policy.EvalContext{})
	require.NoError(t, err)
	require.True(t, result.AutoApproved)
	require.Equal(t, "tool:read_file", result.MatchedRule)
}

func TestAutoCheckUnloadedWorkspaceDenies(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")

	result, err := h.AutoCheck(context.Background(), s.ID, "user:1", "read_file", policy.EvalContext{})
	require.NoError(t, err)
	require.False(t, result.AutoApproved)
}

func TestSetModeTransitionsAndReportsPrevious(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	require.Equal(t, store.ModeRemote, s.Mode)

	result, err := h.SetMode(context.Background(), s.ID, "user:1", store.ModeHybrid)
	require.NoError(t, err)
	require.Equal(t, store.ModeRemote, result.PreviousMode)
	require.Equal(t, store.ModeHybrid, result.CurrentMode)

	updated, err := h.Store.Sessions().Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, store.ModeHybrid, updated.Mode)
}

func TestRebootReturnsPendingWorkAndLatestCheckpoint(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")
	ctx := context.Background()

	approval := &store.ApprovalRequest{
		ID: "req:1", SessionID: s.ID, FilePath: "a.go", Status: store.ApprovalPending,
		OriginalHash: store.NewFileSentinel, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Approvals().Create(ctx, approval))

	prompt := &store.ContinuationPrompt{
		ID: "prompt:1", SessionID: s.ID, PromptText: "continue?", PromptType: store.PromptContinuation,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Prompts().Create(ctx, prompt))

	checkpoint := &store.Checkpoint{
		ID: "checkpoint:1", SessionID: s.ID, WorkspaceRoot: s.WorkspaceRoot, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Store.Checkpoints().Create(ctx, checkpoint))

	channelID := "C1"
	_, err := h.Queue.Task(ctx, &channelID, "pending task", store.SourceIPC)
	require.NoError(t, err)

	sessionIDPtr := s.ID
	result, err := h.Reboot(ctx, &sessionIDPtr, "user:1")
	require.NoError(t, err)
	require.Equal(t, store.SessionActive, result.Status)
	require.Len(t, result.PendingApprovals, 1)
	require.Len(t, result.PendingPrompts, 1)
	require.NotNil(t, result.Checkpoint)
	require.Equal(t, "checkpoint:1", result.Checkpoint.ID)
}

func TestRebootWithNoCheckpointReturnsNil(t *testing.T) {
	h, _, sm := newHandlers(t)
	s := newActiveSession(t, nil, sm, "user:1")

	sessionIDPtr := s.ID
	result, err := h.Reboot(context.Background(), &sessionIDPtr, "user:1")
	require.NoError(t, err)
	require.Nil(t, result.Checkpoint)
}
