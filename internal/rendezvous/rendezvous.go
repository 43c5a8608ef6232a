// Package rendezvous implements the handoff between an intercept handler
// that has parked waiting for an operator decision and the transport that
// eventually delivers it (spec.md §4.5).
//
// It is grounded on the teacher's pkg/effect.BaseRuntime.ReceiveMessage: a
// handler registers interest, blocks on a select between the delivery
// channel and an external context, and the sender-side timeout is expressed
// as that context's deadline rather than a case inside this package. Unlike
// the teacher's single reply channel per agent, this package keeps three
// independent maps — one per request kind — because approvals, prompts, and
// waits are resolved by different operator actions and must never collide
// on id.
package rendezvous

import (
	"context"
	"sync"

	"overseer/internal/errs"
)

// Kind names which of the three process-wide maps an id belongs to.
type Kind string

const (
	Approval Kind = "approval"
	Prompt   Kind = "prompt"
	Wait     Kind = "wait"
)

// Decision is the payload delivered to a parked receiver. It is opaque to
// this package; handlers decide what it means for their own Kind.
type Decision any

// InterruptedDecision is the synthetic Decision InterruptSession delivers
// to every entry it fans out, distinct from any real Kind-specific decision
// shape so a waiting handler can tell "the session was torn out from under
// me" apart from "the operator replied".
const InterruptedDecision Decision = "interrupted"

// entry is the one-shot delivery channel plus a guard so a resolve racing a
// forget (or a second resolve) can never double-close or send-on-closed.
type entry struct {
	ch     chan Decision
	once   sync.Once
	closed bool
}

// Table is one of the three process-wide maps (approval, prompt, wait).
// It is safe for concurrent use; the lock is only ever held around map
// mutation, never while a caller blocks on a channel receive.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Manager bundles the three Kind-scoped tables spec.md §4.5 calls for.
type Manager struct {
	approval *Table
	prompt   *Table
	wait     *Table
}

func NewManager() *Manager {
	return &Manager{
		approval: NewTable(),
		prompt:   NewTable(),
		wait:     NewTable(),
	}
}

func (m *Manager) table(kind Kind) *Table {
	switch kind {
	case Approval:
		return m.approval
	case Prompt:
		return m.prompt
	case Wait:
		return m.wait
	default:
		return nil
	}
}

// Register creates a fresh one-shot entry for id and returns a receive-only
// view of its channel. Registering an id that already has an outstanding
// entry replaces it — the old entry is forgotten, honoring the "at most one
// outstanding entry per id" invariant rather than leaking the stale one.
func (t *Table) Register(id string) <-chan Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[id]; ok {
		old.close()
	}
	e := &entry{ch: make(chan Decision, 1)}
	t.entries[id] = e
	return e.ch
}

// Resolve delivers decision to the entry registered under id and removes
// it. Resolving an unknown or already-resolved id does not panic; it
// returns errs.NotFound, which callers (and a racing double-resolve) can
// treat as a no-op, per spec.md §4.5 / §4.6 T024.
func (t *Table) Resolve(id string, decision Decision) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return errs.New(errs.NotFound, "rendezvous.resolve", "no outstanding entry for id "+id)
	}

	e.once.Do(func() {
		e.ch <- decision
		close(e.ch)
	})
	return nil
}

// Forget removes id without delivering anything, closing its channel so any
// parked receiver observes closure (treated by callers as a cancellation,
// distinct from a timeout's ctx.Done()). Forgetting an unknown id is a
// no-op.
func (t *Table) Forget(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if ok {
		e.close()
	}
}

// ResolveAllForSession resolves every id in ids (typically the outstanding
// approval/prompt/wait ids owned by a terminating session) to decision, and
// removes them. Unknown ids are silently skipped.
func (t *Table) ResolveAllForSession(ids []string, decision Decision) {
	for _, id := range ids {
		_ = t.Resolve(id, decision)
	}
}

func (e *entry) close() {
	e.once.Do(func() {
		close(e.ch)
	})
}

// Receive blocks until id's entry is resolved, id's entry is forgotten
// (channel closes with no value), or ctx is done — whichever happens
// first. It mirrors pkg/effect.BaseRuntime.ReceiveMessage's select, with
// the timeout expressed by the caller's context rather than a duration
// argument: the handler is expected to derive ctx via
// context.WithTimeout(parent, configuredTimeout) before calling Receive.
func Receive(ctx context.Context, ch <-chan Decision) (Decision, error) {
	select {
	case decision, ok := <-ch:
		if !ok {
			return nil, errs.New(errs.NotFound, "rendezvous.receive", "entry forgotten before resolution")
		}
		return decision, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.Internal, "rendezvous.receive", ctx.Err())
	}
}

// RegisterAndReceive is the common case: register id, block for its
// decision honoring ctx's deadline/cancellation, always cleaning up the
// entry afterward so a late resolve (after a timeout already fired) cannot
// leak a goroutine blocked sending into an unbuffered channel — the entry's
// channel is buffered (capacity 1) precisely so a send after the receiver
// has given up still completes instead of blocking forever.
func (t *Table) RegisterAndReceive(ctx context.Context, id string) (Decision, error) {
	ch := t.Register(id)
	decision, err := Receive(ctx, ch)
	t.Forget(id)
	return decision, err
}

// Manager convenience wrappers, dispatching to the table for kind.

func (m *Manager) Register(kind Kind, id string) <-chan Decision {
	return m.table(kind).Register(id)
}

func (m *Manager) Resolve(kind Kind, id string, decision Decision) error {
	return m.table(kind).Resolve(id, decision)
}

func (m *Manager) Forget(kind Kind, id string) {
	m.table(kind).Forget(id)
}

func (m *Manager) RegisterAndReceive(ctx context.Context, kind Kind, id string) (Decision, error) {
	return m.table(kind).RegisterAndReceive(ctx, id)
}

// InterruptSession resolves every outstanding id across all three tables to
// the synthetic "interrupted" decision and removes them, per the session
// termination fan-out spec.md §4.5/§4.7 require. Callers supply the ids
// known to belong to the terminating session (the session manager collects
// them from the store's pending approvals and unresolved prompts, plus the
// session id, which keys its wait entry).
func (m *Manager) InterruptSession(approvalIDs, promptIDs, waitIDs []string, interrupted Decision) {
	m.approval.ResolveAllForSession(approvalIDs, interrupted)
	m.prompt.ResolveAllForSession(promptIDs, interrupted)
	m.wait.ResolveAllForSession(waitIDs, interrupted)
}
