package intercept

import (
	"context"
	"sort"
	"time"

	"overseer/internal/errs"
	"overseer/internal/store"
)

// HeartbeatResult is the ping tool's output shape.
type HeartbeatResult struct {
	SessionID string
	Drained   []*store.SteeringMessage
}

var validProgressStatus = map[string]bool{
	"done":        true,
	"in_progress": true,
	"pending":     true,
}

// Heartbeat implements the ping tool. It resolves the caller's primary
// session by itself (the unique Active session it owns, or the
// most-recently-updated on ties) rather than taking a session id, per
// spec.md §4.10.
func (h *Handlers) Heartbeat(ctx context.Context, actingUserID string, progress []store.ProgressStep) (HeartbeatResult, error) {
	for _, step := range progress {
		if step.Label == "" {
			return HeartbeatResult{}, errs.New(errs.Protocol, "intercept.heartbeat", "progress step has an empty label")
		}
		if !validProgressStatus[step.Status] {
			return HeartbeatResult{}, errs.New(errs.Protocol, "intercept.heartbeat", "progress step has an unknown status "+step.Status)
		}
	}

	active, err := h.Store.Sessions().ListActive(ctx)
	if err != nil {
		return HeartbeatResult{}, errs.Wrap(errs.Internal, "intercept.heartbeat", err)
	}
	var owned []*store.Session
	for _, s := range active {
		if s.OwnerUserID == actingUserID {
			owned = append(owned, s)
		}
	}
	if len(owned) == 0 {
		return HeartbeatResult{}, errs.New(errs.NotFound, "intercept.heartbeat", "no active session owned by "+actingUserID)
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].UpdatedAt.After(owned[j].UpdatedAt) })
	s := owned[0]

	now := time.Now().UTC()
	s.LastActivityAt = &now
	s.ProgressSnapshot = progress
	s.UpdatedAt = now
	if err := h.Store.Sessions().Update(ctx, s); err != nil {
		return HeartbeatResult{}, errs.Wrap(errs.Internal, "intercept.heartbeat", err)
	}

	if h.Stall != nil {
		_ = h.Stall.Reset(s.ID)
	}

	drained, err := h.Queue.DrainSteering(ctx, s.ID)
	if err != nil {
		return HeartbeatResult{}, errs.Wrap(errs.Internal, "intercept.heartbeat", err)
	}

	return HeartbeatResult{SessionID: s.ID, Drained: drained}, nil
}
