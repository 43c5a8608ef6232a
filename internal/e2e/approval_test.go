package e2e

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/config"
	"overseer/internal/intercept"
	"overseer/internal/store"
)

// Scenario 1: Approve-and-apply (spec.md §8).
func TestApproveAndApply(t *testing.T) {
	h := newHarness(t, config.Timeouts{ApprovalSeconds: 2})
	s := h.createActiveSession("user:1")

	var resultCh = make(chan intercept.ApprovalResult, 1)
	go func() {
		res, err := h.handlers.Approval(h.ctx, s.ID, "user:1", intercept.ApprovalInput{
			Title: "Add auth", FilePath: "src/a.rs", DiffContent: "+fn a(){}\n",
		})
		require.NoError(t, err)
		resultCh <- res
	}()

	req := requirePendingApproval(t, h, s.ID)
	resolveApprovalAsync(t, h, req.ID, true, "")

	approvalResult := <-resultCh
	require.Equal(t, store.ApprovalApproved, approvalResult.Status)

	applyResult, err := h.handlers.ApplyDiff(h.ctx, s.ID, "user:1", approvalResult.RequestID, false)
	require.NoError(t, err)
	require.Equal(t, "applied", applyResult.Status)
	require.Len(t, applyResult.FilesWritten, 1)
	require.Equal(t, filepath.Join(s.WorkspaceRoot, "src/a.rs"), applyResult.FilesWritten[0].Path)
	require.Equal(t, len("+fn a(){}\n"), applyResult.FilesWritten[0].Bytes)

	contents, err := os.ReadFile(applyResult.FilesWritten[0].Path)
	require.NoError(t, err)
	require.Equal(t, "+fn a(){}\n", string(contents))

	stored, err := h.store.Approvals().Get(h.ctx, approvalResult.RequestID)
	require.NoError(t, err)
	require.Equal(t, store.ApprovalConsumed, stored.Status)
}

// Scenario 2: Reject with reason (spec.md §8).
func TestRejectWithReason(t *testing.T) {
	h := newHarness(t, config.Timeouts{ApprovalSeconds: 2})
	s := h.createActiveSession("user:1")

	resultCh := make(chan intercept.ApprovalResult, 1)
	go func() {
		res, err := h.handlers.Approval(h.ctx, s.ID, "user:1", intercept.ApprovalInput{
			Title: "Add auth", FilePath: "src/a.rs", DiffContent: "+fn a(){}\n",
		})
		require.NoError(t, err)
		resultCh <- res
	}()

	req := requirePendingApproval(t, h, s.ID)
	resolveApprovalAsync(t, h, req.ID, false, "out of scope")

	res := <-resultCh
	require.Equal(t, store.ApprovalRejected, res.Status)
	require.Equal(t, "out of scope", res.Reason)
}

// Scenario 3: Patch conflict, then force (spec.md §8).
func TestPatchConflictThenForce(t *testing.T) {
	h := newHarness(t, config.Timeouts{ApprovalSeconds: 2})
	s := h.createActiveSession("user:1")

	path := filepath.Join(s.WorkspaceRoot, "src/a.rs")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("fn a(){}\nfn another(){}\n"), 0o644))

	// The hunk only touches line 1; line 2 is outside the hunk's range
	// entirely, so it is carried through verbatim from whatever the file
	// actually contains at apply time.
	diff := "--- a/src/a.rs\n+++ b/src/a.rs\n@@ -1,1 +1,1 @@\n-fn a(){}\n+fn a(){ return 1; }\n"

	resultCh := make(chan intercept.ApprovalResult, 1)
	go func() {
		res, err := h.handlers.Approval(h.ctx, s.ID, "user:1", intercept.ApprovalInput{
			Title: "Edit a", FilePath: "src/a.rs", DiffContent: diff,
		})
		require.NoError(t, err)
		resultCh <- res
	}()

	req := requirePendingApproval(t, h, s.ID)
	resolveApprovalAsync(t, h, req.ID, true, "")
	approvalResult := <-resultCh
	require.Equal(t, store.ApprovalApproved, approvalResult.Status)

	// Someone edits line 2 underneath the approved whole-file hash before
	// check_diff runs — the hash no longer matches, but the hunk only
	// touches line 1, so it still applies cleanly once forced.
	require.NoError(t, os.WriteFile(path, []byte("fn a(){}\nfn another(){} // changed elsewhere\n"), 0o644))

	conflictResult, err := h.handlers.ApplyDiff(h.ctx, s.ID, "user:1", approvalResult.RequestID, false)
	require.NoError(t, err)
	require.Equal(t, "error", conflictResult.Status)
	require.Equal(t, "patch_conflict", conflictResult.ErrorCode)

	forcedResult, err := h.handlers.ApplyDiff(h.ctx, s.ID, "user:1", approvalResult.RequestID, true)
	require.NoError(t, err)
	require.Equal(t, "applied", forcedResult.Status)
}

func requirePendingApproval(t *testing.T, h *harness, sessionID string) *store.ApprovalRequest {
	t.Helper()
	require.Eventually(t, func() bool {
		pending, err := h.store.Approvals().ListPendingBySession(h.ctx, sessionID)
		return err == nil && len(pending) == 1
	}, 2*time.Second, 5*time.Millisecond)
	pending, err := h.store.Approvals().ListPendingBySession(h.ctx, sessionID)
	require.NoError(t, err)
	return pending[0]
}
