package intercept

import (
	"context"
	"time"

	"overseer/internal/atomicwriter"
	"overseer/internal/errs"
	"overseer/internal/store"
)

// FileWritten is one entry of ApplyDiffResult.FilesWritten.
type FileWritten struct {
	Path  string
	Bytes int
}

// ApplyDiffResult is the check_diff tool's output shape. Status is either
// "applied" or "error"; ErrorCode/ErrorMessage are set only on "error".
type ApplyDiffResult struct {
	Status       string
	FilesWritten []FileWritten
	ErrorCode    string
	ErrorMessage string
}

func errResult(code, message string) ApplyDiffResult {
	return ApplyDiffResult{Status: "error", ErrorCode: code, ErrorMessage: message}
}

// ApplyDiff implements the check_diff tool (spec.md §4.10). The documented
// error codes (not_approved, already_consumed, patch_conflict,
// path_violation, request_not_found) are carried in the returned result,
// not as a Go error — only unexpected store/IO failures return a non-nil
// error, which the transport translates via errs.ErrorCode.
func (h *Handlers) ApplyDiff(ctx context.Context, sessionID, actingUserID, requestID string, force bool) (ApplyDiffResult, error) {
	req, err := h.Store.Approvals().Get(ctx, requestID)
	if err != nil {
		return errResult("request_not_found", "no such approval request "+requestID), nil
	}
	s, err := h.ownedSession(ctx, sessionID, actingUserID)
	if err != nil {
		return ApplyDiffResult{}, err
	}
	if req.SessionID != s.ID {
		return errResult("request_not_found", "request "+requestID+" does not belong to this session"), nil
	}

	if req.Status == store.ApprovalConsumed {
		return errResult("already_consumed", "request "+requestID+" was already applied"), nil
	}
	if req.Status != store.ApprovalApproved {
		return errResult("not_approved", "request "+requestID+" is not approved"), nil
	}

	if req.OriginalHash != store.NewFileSentinel && !force {
		cur, err := originalHash(s.WorkspaceRoot, req.FilePath)
		if err != nil {
			if errs.KindOf(err) == errs.PathViolation {
				return errResult("path_violation", err.Error()), nil
			}
			return ApplyDiffResult{}, errs.Wrap(errs.Internal, "intercept.apply_diff", err)
		}
		if cur != req.OriginalHash {
			return errResult("patch_conflict", "file "+req.FilePath+" changed since the request's original hash was taken"), nil
		}
	}

	var written FileWritten
	if req.OriginalHash == store.NewFileSentinel {
		path, err := atomicwriter.WriteFull(s.WorkspaceRoot, req.FilePath, []byte(req.DiffContent), 0o644)
		if err != nil {
			if errs.KindOf(err) == errs.PathViolation {
				return errResult("path_violation", err.Error()), nil
			}
			return ApplyDiffResult{}, err
		}
		written = FileWritten{Path: path, Bytes: len(req.DiffContent)}
	} else {
		newContents, path, err := atomicwriter.ApplyPatch(s.WorkspaceRoot, req.FilePath, req.DiffContent)
		if err != nil {
			if errs.KindOf(err) == errs.PathViolation {
				return errResult("path_violation", err.Error()), nil
			}
			return ApplyDiffResult{}, err
		}
		written = FileWritten{Path: path, Bytes: len(newContents)}
	}

	req.Status = store.ApprovalConsumed
	now := time.Now().UTC()
	req.ConsumedAt = &now
	if err := h.Store.Approvals().Update(ctx, req); err != nil {
		return ApplyDiffResult{}, errs.Wrap(errs.Internal, "intercept.apply_diff", err)
	}

	return ApplyDiffResult{Status: "applied", FilesWritten: []FileWritten{written}}, nil
}
