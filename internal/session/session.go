// Package session implements the Session Manager (C7): the state machine
// governing Session.status transitions from spec.md §3, concurrency-cap
// enforcement at create time, owner-bound mutation, session resolution, the
// idempotent termination fan-out, and crash recovery on startup.
//
// Grounded on the teacher's pkg/dispatch.Dispatcher: a registry struct
// guarded by a mutex (agents map[string]Agent, leases map[string]string)
// that both owns per-entity bookkeeping and coordinates cancellation:
// generalized here from an agent registry keyed by agent id into a session
// registry keyed by session id, with a per-session context.CancelFunc taking
// the place of the dispatcher's shutdown channel.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"overseer/internal/errs"
	"overseer/internal/ids"
	"overseer/internal/rendezvous"
	"overseer/internal/store"
	"overseer/pkg/logx"
)

// scope bundles the per-session cancellation handle the manager hands out
// at creation time. Cancelling it unblocks the stall detector, the child
// monitor, and any handler parked on a timer for that session (spec.md §4.7).
type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns the in-memory bookkeeping Session Manager state needs on top
// of the store: one cancellation scope per live session, plus the
// rendezvous manager it fans termination out to.
type Manager struct {
	store store.Store
	rv    *rendezvous.Manager
	log   *logx.Logger

	maxConcurrent int

	mu     sync.Mutex
	scopes map[string]*scope
}

// New constructs a Manager. maxConcurrentSessions mirrors
// config.Config.MaxConcurrentSessions.
func New(st store.Store, rv *rendezvous.Manager, maxConcurrentSessions int) *Manager {
	return &Manager{
		store:         st,
		rv:            rv,
		log:           logx.NewLogger("session"),
		maxConcurrent: maxConcurrentSessions,
		scopes:        make(map[string]*scope),
	}
}

// Create inserts a new Session row in status Created, enforcing the
// concurrency cap against the count of currently Active rows (spec.md §3:
// "At most max_concurrent_sessions rows have status Active" — Created rows
// do not count against the cap, only the transition into Active does, see
// Activate).
func (m *Manager) Create(ctx context.Context, ownerUserID, workspaceRoot string, mode store.SessionMode, protocolMode store.ProtocolMode, prompt, channelID *string) (*store.Session, error) {
	if ownerUserID == "" {
		return nil, errs.New(errs.Unauthorized, "session.create", "owner_user_id is required")
	}

	now := time.Now().UTC()
	s := &store.Session{
		ID:                 ids.New(ids.PrefixSession),
		OwnerUserID:        ownerUserID,
		WorkspaceRoot:      workspaceRoot,
		Status:             store.SessionCreated,
		Prompt:             prompt,
		Mode:               mode,
		ProtocolMode:       protocolMode,
		ChannelID:          channelID,
		ConnectivityStatus: store.ConnectivityOnline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.store.Sessions().Create(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.create", err)
	}
	return s, nil
}

// Activate transitions a Created (or Interrupted-via-restart) session into
// Active, enforcing the concurrency cap at the moment of transition. On
// success it installs a fresh cancellation scope for the session.
func (m *Manager) Activate(ctx context.Context, sessionID, actingUserID string) (*store.Session, error) {
	s, err := m.ownedSession(ctx, sessionID, actingUserID, "session.activate")
	if err != nil {
		return nil, err
	}

	if s.Status != store.SessionCreated {
		return nil, errs.New(errs.Conflict, "session.activate", fmt.Sprintf("cannot activate session in status %s", s.Status))
	}

	active, err := m.store.Sessions().CountActive(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "session.activate", err)
	}
	if active >= m.maxConcurrent {
		return nil, errs.New(errs.Conflict, "session.activate", "max_concurrent_sessions reached")
	}

	s.Status = store.SessionActive
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Sessions().Update(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.activate", err)
	}

	m.installScope(sessionID)
	return s, nil
}

// Pause transitions Active -> Paused.
func (m *Manager) Pause(ctx context.Context, sessionID, actingUserID string) (*store.Session, error) {
	return m.transition(ctx, sessionID, actingUserID, "session.pause", store.SessionActive, store.SessionPaused)
}

// Resume transitions Paused -> Active, re-checking the concurrency cap
// (a paused session does not hold its slot).
func (m *Manager) Resume(ctx context.Context, sessionID, actingUserID string) (*store.Session, error) {
	s, err := m.ownedSession(ctx, sessionID, actingUserID, "session.resume")
	if err != nil {
		return nil, err
	}
	if s.Status != store.SessionPaused {
		return nil, errs.New(errs.Conflict, "session.resume", fmt.Sprintf("cannot resume session in status %s", s.Status))
	}

	active, err := m.store.Sessions().CountActive(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "session.resume", err)
	}
	if active >= m.maxConcurrent {
		return nil, errs.New(errs.Conflict, "session.resume", "max_concurrent_sessions reached")
	}

	s.Status = store.SessionActive
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Sessions().Update(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.resume", err)
	}
	return s, nil
}

// SetThreadTS sets Session.thread_ts, which is write-once (spec.md §3).
func (m *Manager) SetThreadTS(ctx context.Context, sessionID, actingUserID, threadTS string) (*store.Session, error) {
	s, err := m.ownedSession(ctx, sessionID, actingUserID, "session.set_thread_ts")
	if err != nil {
		return nil, err
	}
	if s.ThreadTS != nil {
		return nil, errs.New(errs.Conflict, "session.set_thread_ts", "thread_ts already set")
	}
	s.ThreadTS = &threadTS
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Sessions().Update(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.set_thread_ts", err)
	}
	return s, nil
}

func (m *Manager) transition(ctx context.Context, sessionID, actingUserID, op string, from, to store.SessionStatus) (*store.Session, error) {
	s, err := m.ownedSession(ctx, sessionID, actingUserID, op)
	if err != nil {
		return nil, err
	}
	if s.Status != from {
		return nil, errs.New(errs.Conflict, op, fmt.Sprintf("cannot transition session in status %s", s.Status))
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Sessions().Update(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	return s, nil
}

// ResolveSession implements spec.md §4.7's resolve_session: the explicit id
// if it exists and matches owner; else the unique Active session of that
// owner; else NotFound/Unauthorized.
func (m *Manager) ResolveSession(ctx context.Context, sessionID *string, actingUserID string) (*store.Session, error) {
	if sessionID != nil && *sessionID != "" {
		s, err := m.store.Sessions().Get(ctx, *sessionID)
		if err != nil {
			return nil, errs.New(errs.NotFound, "session.resolve", "no such session")
		}
		if s.OwnerUserID != actingUserID {
			return nil, errs.New(errs.Unauthorized, "session.resolve", "session is owned by a different user")
		}
		return s, nil
	}

	actives, err := m.store.Sessions().ListActive(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "session.resolve", err)
	}
	var owned []*store.Session
	for _, s := range actives {
		if s.OwnerUserID == actingUserID {
			owned = append(owned, s)
		}
	}
	switch len(owned) {
	case 0:
		return nil, errs.New(errs.NotFound, "session.resolve", "no active session for user")
	case 1:
		return owned[0], nil
	default:
		return nil, errs.New(errs.Conflict, "session.resolve", "more than one active session for user; an explicit session id is required")
	}
}

// ownedSession loads a session and checks owner binding (spec.md §4.7:
// "every mutation call accepts an acting_user_id and must match
// owner_user_id").
func (m *Manager) ownedSession(ctx context.Context, sessionID, actingUserID, op string) (*store.Session, error) {
	s, err := m.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, errs.New(errs.NotFound, op, "no such session")
	}
	if s.OwnerUserID != actingUserID {
		return nil, errs.New(errs.Unauthorized, op, "session is owned by a different user")
	}
	return s, nil
}

// installScope creates (replacing any prior one) the per-session
// cancellation scope and returns its context.
func (m *Manager) installScope(sessionID string) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if old, ok := m.scopes[sessionID]; ok {
		old.cancel()
	}
	m.scopes[sessionID] = &scope{ctx: ctx, cancel: cancel}
	m.mu.Unlock()

	return ctx
}

// HasScope reports whether sessionID currently has a live cancellation
// scope installed (i.e. it is Active and has not been terminated or
// interrupted since).
func (m *Manager) HasScope(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.scopes[sessionID]
	return ok
}

// ScopeContext returns the live cancellation context for sessionID, for
// components (stall detector, child monitor) that need to select on it
// directly rather than just a bare done channel. ok is false if the session
// has no live scope.
func (m *Manager) ScopeContext(sessionID string) (ctx context.Context, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, present := m.scopes[sessionID]
	if !present {
		return nil, false
	}
	return sc.ctx, true
}

// Done returns a channel that closes when sessionID's cancellation scope is
// cancelled (by Terminate or Interrupt), for the stall detector and child
// monitor to select on. Reports ok == false if the session has no live
// scope (never activated, or already torn down).
func (m *Manager) Done(sessionID string) (done <-chan struct{}, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, present := m.scopes[sessionID]
	if !present {
		return nil, false
	}
	return sc.ctx.Done(), true
}

// Terminate implements the fan-out from spec.md §4.7: resolves all
// outstanding rendezvous entries for the session to "interrupted", cancels
// the per-session scope, marks terminated_at, and — if childDone is
// non-nil — waits for the child process to exit. Fan-out is idempotent: a
// session already Terminated is left untouched and Terminate returns its
// current row without error. Any status other than Active, Paused or
// Terminated is a Conflict.
func (m *Manager) Terminate(ctx context.Context, sessionID, actingUserID string, childDone <-chan struct{}) (*store.Session, error) {
	s, err := m.ownedSession(ctx, sessionID, actingUserID, "session.terminate")
	if err != nil {
		return nil, err
	}

	if s.Status == store.SessionTerminated {
		return s, nil
	}
	if s.Status != store.SessionActive && s.Status != store.SessionPaused {
		return nil, errs.New(errs.Conflict, "session.terminate", fmt.Sprintf("cannot terminate session in status %s", s.Status))
	}

	m.fanOutInterrupt(ctx, s)

	m.mu.Lock()
	if sc, ok := m.scopes[sessionID]; ok {
		sc.cancel()
		delete(m.scopes, sessionID)
	}
	m.mu.Unlock()

	if childDone != nil {
		<-childDone
	}

	now := time.Now().UTC()
	s.Status = store.SessionTerminated
	s.TerminatedAt = &now
	s.UpdatedAt = now
	if err := m.store.Sessions().Update(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.terminate", err)
	}
	return s, nil
}

// Interrupt moves an Active session straight to Interrupted without
// deleting it, e.g. on an unrecoverable agent-driver error. A subsequent
// restart creates a new session with restart_of pointing at this one
// (spec.md §3's "Active -> Interrupted -> (via restart) new Active").
func (m *Manager) Interrupt(ctx context.Context, sessionID string) (*store.Session, error) {
	s, err := m.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, errs.New(errs.NotFound, "session.interrupt", "no such session")
	}
	if s.Status != store.SessionActive {
		return s, nil
	}

	m.fanOutInterrupt(ctx, s)

	m.mu.Lock()
	if sc, ok := m.scopes[sessionID]; ok {
		sc.cancel()
		delete(m.scopes, sessionID)
	}
	m.mu.Unlock()

	s.Status = store.SessionInterrupted
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Sessions().Update(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.interrupt", err)
	}
	return s, nil
}

// Restart creates a new Created-status session with restart_of set to the
// interrupted session's id, copying its owner, workspace, mode and protocol.
func (m *Manager) Restart(ctx context.Context, interruptedSessionID, actingUserID string) (*store.Session, error) {
	old, err := m.ownedSession(ctx, interruptedSessionID, actingUserID, "session.restart")
	if err != nil {
		return nil, err
	}
	if old.Status != store.SessionInterrupted {
		return nil, errs.New(errs.Conflict, "session.restart", fmt.Sprintf("cannot restart session in status %s", old.Status))
	}

	now := time.Now().UTC()
	s := &store.Session{
		ID:                 ids.New(ids.PrefixSession),
		OwnerUserID:        old.OwnerUserID,
		WorkspaceRoot:      old.WorkspaceRoot,
		Status:             store.SessionCreated,
		Mode:               old.Mode,
		ProtocolMode:       old.ProtocolMode,
		ChannelID:          old.ChannelID,
		ConnectivityStatus: store.ConnectivityOnline,
		RestartOf:          &old.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.store.Sessions().Create(ctx, s); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.restart", err)
	}
	return s, nil
}

// fanOutInterrupt resolves every pending approval, prompt, and rendezvous
// entry belonging to s to "interrupted". It is called from both Terminate
// and Interrupt and is itself idempotent: resolving an already-resolved
// rendezvous id or updating an already-terminal approval/prompt row is a
// silent no-op at the rendezvous layer (see internal/rendezvous) but here we
// only fan out rows the store still reports pending, so double-invocation
// across Terminate/Interrupt racing is safe.
func (m *Manager) fanOutInterrupt(ctx context.Context, s *store.Session) {
	approvals, err := m.store.Approvals().ListPendingBySession(ctx, s.ID)
	if err != nil {
		m.log.Warn("session fan-out: list pending approvals for %s failed: %v", s.ID, err)
		approvals = nil
	}
	var approvalIDs []string
	for _, a := range approvals {
		approvalIDs = append(approvalIDs, a.ID)
		a.Status = store.ApprovalInterrupted
		if err := m.store.Approvals().Update(ctx, a); err != nil {
			m.log.Warn("session fan-out: mark approval %s interrupted failed: %v", a.ID, err)
		}
	}

	prompts, err := m.store.Prompts().ListBySession(ctx, s.ID)
	if err != nil {
		m.log.Warn("session fan-out: list prompts for %s failed: %v", s.ID, err)
		prompts = nil
	}
	var promptIDs []string
	for _, p := range prompts {
		if p.ResolvedAt != nil {
			continue
		}
		promptIDs = append(promptIDs, p.ID)
		now := time.Now().UTC()
		decision := store.DecisionStop
		p.Decision = &decision
		p.ResolvedAt = &now
		if err := m.store.Prompts().Update(ctx, p); err != nil {
			m.log.Warn("session fan-out: mark prompt %s interrupted failed: %v", p.ID, err)
		}
	}

	// A session's wait entry is keyed by the session id itself (see
	// intercept.Handlers.Wait).
	m.rv.InterruptSession(approvalIDs, promptIDs, []string{s.ID}, rendezvous.InterruptedDecision)
}

// RecoverOnStartup implements spec.md §4.7's crash recovery: every session
// found Active is transitioned to Interrupted, and its pending approvals and
// prompts are resolved to interrupted. No automatic restart is performed.
func RecoverOnStartup(ctx context.Context, st store.Store, rv *rendezvous.Manager) error {
	log := logx.NewLogger("session.recovery")

	actives, err := st.Sessions().ListByStatus(ctx, store.SessionActive)
	if err != nil {
		return errs.Wrap(errs.Internal, "session.recover_on_startup", err)
	}

	m := &Manager{store: st, rv: rv, log: log, scopes: make(map[string]*scope)}

	for _, s := range actives {
		m.fanOutInterrupt(ctx, s)
		s.Status = store.SessionInterrupted
		s.UpdatedAt = time.Now().UTC()
		if err := st.Sessions().Update(ctx, s); err != nil {
			log.Warn("recovery: failed to mark session %s interrupted: %v", s.ID, err)
			continue
		}
		log.Info("recovery: session %s was Active at startup, marked Interrupted", s.ID)
	}
	return nil
}
