package intercept

import (
	"context"
	"time"

	"overseer/internal/collab"
	"overseer/internal/errs"
	"overseer/internal/ids"
	"overseer/internal/rendezvous"
	"overseer/internal/store"
	"overseer/internal/utils"
)

// ApprovalInput is the tool's input shape (spec.md §4.10).
type ApprovalInput struct {
	Title       string
	Description string
	DiffContent string
	FilePath    string
	RiskLevel   store.RiskLevel // defaults to store.RiskLow if empty
}

// ApprovalResult is the tool's output shape. Reason is set only when Status
// is Rejected.
type ApprovalResult struct {
	Status    store.ApprovalStatus
	RequestID string
	Reason    string
}

// ApprovalDecision is the Decision payload an operator resolves an approval
// rendezvous entry with.
type ApprovalDecision struct {
	Approved bool
	Reason   string
}

// Approval persists a Pending ApprovalRequest, posts it to the chat
// collaborator, and parks on a rendezvous entry until the operator
// responds or the configured approval timeout elapses (in which case the
// request is dropped as Expired, per spec.md §4.10's table).
func (h *Handlers) Approval(ctx context.Context, sessionID, actingUserID string, in ApprovalInput) (ApprovalResult, error) {
	s, err := h.ownedSession(ctx, sessionID, actingUserID)
	if err != nil {
		return ApprovalResult{}, err
	}

	risk := in.RiskLevel
	if risk == "" {
		risk = store.RiskLow
	}

	hash, err := originalHash(s.WorkspaceRoot, in.FilePath)
	if err != nil {
		return ApprovalResult{}, err
	}

	req := &store.ApprovalRequest{
		ID:           ids.New(ids.PrefixApproval),
		SessionID:    sessionID,
		Title:        in.Title,
		DiffContent:  in.DiffContent,
		FilePath:     in.FilePath,
		RiskLevel:    risk,
		Status:       store.ApprovalPending,
		OriginalHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if in.Description != "" {
		req.Description = &in.Description
	}
	if err := h.Store.Approvals().Create(ctx, req); err != nil {
		return ApprovalResult{}, errs.Wrap(errs.Internal, "intercept.approval", err)
	}

	if channelID := channelOf(s); channelID != "" {
		ts, err := h.Chat.PostApprovalRequest(ctx, collab.ApprovalPost{
			ChannelID:   channelID,
			Title:       in.Title,
			Description: in.Description,
			DiffContent: in.DiffContent,
			FilePath:    in.FilePath,
			RiskLevel:   string(risk),
		})
		if err == nil && ts != "" {
			req.ChatTS = &ts
			_ = h.Store.Approvals().Update(ctx, req)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.Timeouts.Approval())
	defer cancel()
	decision, err := h.Rendez.RegisterAndReceive(waitCtx, rendezvous.Approval, req.ID)

	switch {
	case err != nil:
		// Timeout, cancellation, or forget (the entry replaced by a newer
		// registration of the same id): the request is dropped per spec.md
		// §4.10's table.
		req.Status = store.ApprovalExpired
		_ = h.Store.Approvals().Update(ctx, req)
		return ApprovalResult{Status: store.ApprovalExpired, RequestID: req.ID}, nil
	default:
		if decision == rendezvous.InterruptedDecision {
			// session.fanOutInterrupt already marked the record Interrupted
			// before waking us; report that rather than overwriting it with
			// a synthetic expiry.
			return ApprovalResult{Status: store.ApprovalInterrupted, RequestID: req.ID}, nil
		}
		ad, ok := utils.SafeAssert[ApprovalDecision](decision)
		if !ok {
			// Any other shape we don't recognise: treat like expiry.
			req.Status = store.ApprovalExpired
			_ = h.Store.Approvals().Update(ctx, req)
			return ApprovalResult{Status: store.ApprovalExpired, RequestID: req.ID}, nil
		}
		if ad.Approved {
			req.Status = store.ApprovalApproved
		} else {
			req.Status = store.ApprovalRejected
		}
		_ = h.Store.Approvals().Update(ctx, req)
		result := ApprovalResult{Status: req.Status, RequestID: req.ID}
		if !ad.Approved {
			result.Reason = ad.Reason
		}
		return result, nil
	}
}

// ResolveApproval completes the rendezvous entry an outstanding Approval
// call registered. Resolving an unknown or already-resolved id returns
// errs.NotFound (rendezvous.Table.Resolve's contract), which callers treat
// as a no-op rather than an error to surface to the operator.
func (h *Handlers) ResolveApproval(requestID string, approved bool, reason string) error {
	return h.Rendez.Resolve(rendezvous.Approval, requestID, ApprovalDecision{Approved: approved, Reason: reason})
}

func channelOf(s *store.Session) string {
	if s.ChannelID == nil {
		return ""
	}
	return *s.ChannelID
}
