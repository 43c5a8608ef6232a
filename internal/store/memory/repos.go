package memory

import (
	"context"
	"sort"

	"overseer/internal/store"
)

// --- Approval Requests ---

type approvalRepo struct{ s *Store }

func cloneApproval(a *store.ApprovalRequest) *store.ApprovalRequest {
	cp := *a
	return &cp
}

func (r *approvalRepo) Create(_ context.Context, a *store.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (r *approvalRepo) Get(_ context.Context, id string) (*store.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.approvals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneApproval(a), nil
}

func (r *approvalRepo) Update(_ context.Context, a *store.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.approvals[a.ID]; !ok {
		return store.ErrNotFound
	}
	r.s.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (r *approvalRepo) ListBySession(_ context.Context, sessionID string) ([]*store.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.ApprovalRequest
	for _, a := range r.s.approvals {
		if a.SessionID == sessionID {
			out = append(out, cloneApproval(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *approvalRepo) ListPendingBySession(ctx context.Context, sessionID string) ([]*store.ApprovalRequest, error) {
	all, err := r.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var out []*store.ApprovalRequest
	for _, a := range all {
		if a.Status == store.ApprovalPending {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- Continuation Prompts ---

type promptRepo struct{ s *Store }

func clonePrompt(p *store.ContinuationPrompt) *store.ContinuationPrompt {
	cp := *p
	return &cp
}

func (r *promptRepo) Create(_ context.Context, p *store.ContinuationPrompt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.prompts[p.ID] = clonePrompt(p)
	return nil
}

func (r *promptRepo) Get(_ context.Context, id string) (*store.ContinuationPrompt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prompts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePrompt(p), nil
}

func (r *promptRepo) Update(_ context.Context, p *store.ContinuationPrompt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.prompts[p.ID]; !ok {
		return store.ErrNotFound
	}
	r.s.prompts[p.ID] = clonePrompt(p)
	return nil
}

func (r *promptRepo) ListBySession(_ context.Context, sessionID string) ([]*store.ContinuationPrompt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.ContinuationPrompt
	for _, p := range r.s.prompts {
		if p.SessionID == sessionID {
			out = append(out, clonePrompt(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Stall Alerts ---

type stallAlertRepo struct{ s *Store }

func cloneStallAlert(a *store.StallAlert) *store.StallAlert {
	cp := *a
	return &cp
}

func (r *stallAlertRepo) Create(_ context.Context, a *store.StallAlert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stalls[a.ID] = cloneStallAlert(a)
	return nil
}

func (r *stallAlertRepo) Get(_ context.Context, id string) (*store.StallAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.stalls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneStallAlert(a), nil
}

func (r *stallAlertRepo) Update(_ context.Context, a *store.StallAlert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.stalls[a.ID]; !ok {
		return store.ErrNotFound
	}
	r.s.stalls[a.ID] = cloneStallAlert(a)
	return nil
}

func (r *stallAlertRepo) GetOpenBySession(_ context.Context, sessionID string) (*store.StallAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *store.StallAlert
	for _, a := range r.s.stalls {
		if a.SessionID != sessionID || store.StallAlertTerminalStatuses[a.Status] {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneStallAlert(best), nil
}

func (r *stallAlertRepo) ListBySession(_ context.Context, sessionID string) ([]*store.StallAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.StallAlert
	for _, a := range r.s.stalls {
		if a.SessionID == sessionID {
			out = append(out, cloneStallAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Checkpoints ---

type checkpointRepo struct{ s *Store }

func cloneCheckpoint(c *store.Checkpoint) *store.Checkpoint {
	cp := *c
	return &cp
}

func (r *checkpointRepo) Create(_ context.Context, c *store.Checkpoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.checkpoints[c.ID] = cloneCheckpoint(c)
	return nil
}

func (r *checkpointRepo) Get(_ context.Context, id string) (*store.Checkpoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.checkpoints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCheckpoint(c), nil
}

func (r *checkpointRepo) ListBySession(_ context.Context, sessionID string) ([]*store.Checkpoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.Checkpoint
	for _, c := range r.s.checkpoints {
		if c.SessionID == sessionID {
			out = append(out, cloneCheckpoint(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *checkpointRepo) LatestBySession(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
	all, err := r.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, store.ErrNotFound
	}
	return all[len(all)-1], nil
}

// --- Steering Messages ---

type steeringRepo struct{ s *Store }

func cloneSteering(m *store.SteeringMessage) *store.SteeringMessage {
	cp := *m
	return &cp
}

func (r *steeringRepo) Create(_ context.Context, m *store.SteeringMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.steering[m.ID] = cloneSteering(m)
	return nil
}

func (r *steeringRepo) ListUnconsumed(_ context.Context, sessionID string) ([]*store.SteeringMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.SteeringMessage
	for _, m := range r.s.steering {
		if m.SessionID == sessionID && !m.Consumed {
			out = append(out, cloneSteering(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *steeringRepo) MarkConsumed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.steering[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Consumed = true
	return nil
}

// --- Task Inbox Items ---

type inboxRepo struct{ s *Store }

func cloneInbox(i *store.TaskInboxItem) *store.TaskInboxItem {
	cp := *i
	return &cp
}

func (r *inboxRepo) Create(_ context.Context, i *store.TaskInboxItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.inbox[i.ID] = cloneInbox(i)
	return nil
}

func (r *inboxRepo) ListUnconsumedForChannel(_ context.Context, channelID string) ([]*store.TaskInboxItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.TaskInboxItem
	for _, i := range r.s.inbox {
		if i.Consumed {
			continue
		}
		if i.ChannelID == nil || *i.ChannelID == channelID {
			out = append(out, cloneInbox(i))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inboxRepo) MarkConsumed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.inbox[id]
	if !ok {
		return store.ErrNotFound
	}
	i.Consumed = true
	return nil
}
