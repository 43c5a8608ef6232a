package intercept

import (
	"context"
	"errors"

	"overseer/internal/errs"
	"overseer/internal/store"
)

// RebootResult is the recover_state tool's output shape.
type RebootResult struct {
	SessionID        string
	Status           store.SessionStatus
	PendingApprovals []*store.ApprovalRequest
	PendingPrompts   []*store.ContinuationPrompt
	Checkpoint       *store.Checkpoint // nil if none exists yet
	ProgressSnapshot []store.ProgressStep
	InboxItems       []*store.TaskInboxItem
}

// Reboot implements the recover_state tool: everything an agent needs to
// pick back up after a restart (spec.md §4.10). sessionID is optional —
// nil falls back to session.Manager.ResolveSession's unique-Active-session
// rule, the same fallback every other handler that takes an explicit id
// could use but most don't need.
func (h *Handlers) Reboot(ctx context.Context, sessionID *string, actingUserID string) (RebootResult, error) {
	s, err := h.Sessions.ResolveSession(ctx, sessionID, actingUserID)
	if err != nil {
		return RebootResult{}, err
	}

	// A session recovered from a hard crash (RecoverOnStartup) carries its
	// approvals as Interrupted, not Pending — surface those too, so
	// recover_state still reports scenario 6's crash-recovered requests and
	// not just the in-session Pending case. Recovery resolves its prompts
	// (decision Stop), so those no longer appear below.
	allApprovals, err := h.Store.Approvals().ListBySession(ctx, s.ID)
	if err != nil {
		return RebootResult{}, errs.Wrap(errs.Internal, "intercept.reboot", err)
	}
	var pendingApprovals []*store.ApprovalRequest
	for _, a := range allApprovals {
		if a.Status == store.ApprovalPending || a.Status == store.ApprovalInterrupted {
			pendingApprovals = append(pendingApprovals, a)
		}
	}

	allPrompts, err := h.Store.Prompts().ListBySession(ctx, s.ID)
	if err != nil {
		return RebootResult{}, errs.Wrap(errs.Internal, "intercept.reboot", err)
	}
	var pendingPrompts []*store.ContinuationPrompt
	for _, p := range allPrompts {
		if p.ResolvedAt == nil {
			pendingPrompts = append(pendingPrompts, p)
		}
	}

	checkpoint, err := h.Store.Checkpoints().LatestBySession(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return RebootResult{}, errs.Wrap(errs.Internal, "intercept.reboot", err)
		}
		checkpoint = nil
	}

	channelID := channelOf(s)
	inboxItems, err := h.Queue.PeekInbox(ctx, channelID)
	if err != nil {
		return RebootResult{}, errs.Wrap(errs.Internal, "intercept.reboot", err)
	}

	return RebootResult{
		SessionID:        s.ID,
		Status:           s.Status,
		PendingApprovals: pendingApprovals,
		PendingPrompts:   pendingPrompts,
		Checkpoint:       checkpoint,
		ProgressSnapshot: s.ProgressSnapshot,
		InboxItems:       inboxItems,
	}, nil
}
