// Package memory is the in-memory Store backend spec.md §4.1 requires for
// fast unit tests. It satisfies the exact same repository interfaces as
// internal/store/sqlite, trading persistence for speed: every entity lives
// in a plain map guarded by a single mutex, mirroring the teacher's
// single-writer SQLite connection rather than fine-grained per-table locks.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"overseer/internal/store"
)

// Store is the in-memory store.Store implementation.
type Store struct {
	mu sync.Mutex

	sessions    map[string]*store.Session
	approvals   map[string]*store.ApprovalRequest
	prompts     map[string]*store.ContinuationPrompt
	stalls      map[string]*store.StallAlert
	checkpoints map[string]*store.Checkpoint
	steering    map[string]*store.SteeringMessage
	inbox       map[string]*store.TaskInboxItem
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		sessions:    map[string]*store.Session{},
		approvals:   map[string]*store.ApprovalRequest{},
		prompts:     map[string]*store.ContinuationPrompt{},
		stalls:      map[string]*store.StallAlert{},
		checkpoints: map[string]*store.Checkpoint{},
		steering:    map[string]*store.SteeringMessage{},
		inbox:       map[string]*store.TaskInboxItem{},
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error { return nil }

func (s *Store) Sessions() store.SessionRepo       { return &sessionRepo{s} }
func (s *Store) Approvals() store.ApprovalRepo     { return &approvalRepo{s} }
func (s *Store) Prompts() store.PromptRepo         { return &promptRepo{s} }
func (s *Store) StallAlerts() store.StallAlertRepo { return &stallAlertRepo{s} }
func (s *Store) Checkpoints() store.CheckpointRepo { return &checkpointRepo{s} }
func (s *Store) Steering() store.SteeringRepo      { return &steeringRepo{s} }
func (s *Store) Inbox() store.InboxRepo            { return &inboxRepo{s} }

func cloneSession(s *store.Session) *store.Session {
	cp := *s
	return &cp
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(_ context.Context, s *store.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *sessionRepo) Get(_ context.Context, id string) (*store.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *sessionRepo) Update(_ context.Context, s *store.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	r.s.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *sessionRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.sessions, id)

	for aid, a := range r.s.approvals {
		if a.SessionID == id {
			delete(r.s.approvals, aid)
		}
	}
	for pid, p := range r.s.prompts {
		if p.SessionID == id {
			delete(r.s.prompts, pid)
		}
	}
	for said, a := range r.s.stalls {
		if a.SessionID == id {
			delete(r.s.stalls, said)
		}
	}
	for cid, c := range r.s.checkpoints {
		if c.SessionID == id {
			delete(r.s.checkpoints, cid)
		}
	}
	return nil
}

func (r *sessionRepo) ListByStatus(_ context.Context, status store.SessionStatus) ([]*store.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.Session
	for _, s := range r.s.sessions {
		if s.Status == status {
			out = append(out, cloneSession(s))
		}
	}
	sortSessions(out)
	return out, nil
}

func (r *sessionRepo) ListActive(ctx context.Context) ([]*store.Session, error) {
	return r.ListByStatus(ctx, store.SessionActive)
}

func (r *sessionRepo) ListTerminatedBefore(_ context.Context, cutoff time.Time) ([]*store.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*store.Session
	for _, s := range r.s.sessions {
		if s.Status == store.SessionTerminated && s.TerminatedAt != nil && s.TerminatedAt.Before(cutoff) {
			out = append(out, cloneSession(s))
		}
	}
	sortSessions(out)
	return out, nil
}

func (r *sessionRepo) CountActive(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, s := range r.s.sessions {
		if s.Status == store.SessionActive {
			n++
		}
	}
	return n, nil
}

func sortSessions(sessions []*store.Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
}
