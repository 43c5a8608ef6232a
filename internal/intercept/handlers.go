// Package intercept implements the eight tool-call handlers an agent driver
// dispatches into (spec.md §4.10). Every handler shares the same skeleton:
// resolve the session, verify the caller owns it, do its one piece of
// domain work, and — where it parks — race a rendezvous receive against a
// configured timeout. It is grounded on the teacher's pkg/dispatch handler
// methods (GetTask/CompleteTask/FailTask), each of which resolves an agent,
// checks a lease, mutates one record, and replies with a small response
// struct; this package generalizes that shape across eight kinds instead of
// three.
package intercept

import (
	"context"

	"overseer/internal/collab"
	"overseer/internal/config"
	"overseer/internal/errs"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/stall"
	"overseer/internal/store"
	"overseer/pkg/logx"
)

// Handlers bundles every collaborator a tool-call handler needs. Built once
// at startup and shared across every connection (spec.md §4.12's four
// transports all dispatch into the same Handlers value).
type Handlers struct {
	Store    store.Store
	Sessions *session.Manager
	Rendez   *rendezvous.Manager
	Policy   *policy.Cache
	Queue    *queue.Manager
	Chat     collab.ChatPoster
	Audit    collab.AuditLogger
	Stall    *stall.Supervisor // optional: nil disables the reset-on-heartbeat wiring
	Timeouts config.Timeouts
	Log      *logx.Logger
}

// New builds a Handlers value. Chat and Audit default to no-ops if nil so
// callers that don't wire a collaborator still get a working supervisor
// (spec.md §6: local-mode sessions post nothing).
func New(st store.Store, sessions *session.Manager, rv *rendezvous.Manager, pc *policy.Cache, qm *queue.Manager, chat collab.ChatPoster, audit collab.AuditLogger, sup *stall.Supervisor, timeouts config.Timeouts, log *logx.Logger) *Handlers {
	if chat == nil {
		chat = collab.NoopChatPoster{}
	}
	if audit == nil {
		audit = collab.NoopAuditLogger{}
	}
	return &Handlers{
		Store:    st,
		Sessions: sessions,
		Rendez:   rv,
		Policy:   pc,
		Queue:    qm,
		Chat:     chat,
		Audit:    audit,
		Stall:    sup,
		Timeouts: timeouts,
		Log:      log,
	}
}

// ownedSession loads a session and checks actingUserID owns it. Every
// handler but Heartbeat (which resolves the primary session by itself) and
// Reboot (which uses session.Manager.ResolveSession for its optional-id
// fallback) goes through this same check, matching the failure semantics
// spec.md §4.10 pins down: unknown session -> NotFound, non-owner ->
// Unauthorized.
func (h *Handlers) ownedSession(ctx context.Context, sessionID, actingUserID string) (*store.Session, error) {
	s, err := h.Store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, errs.New(errs.NotFound, "intercept.owned_session", "no such session "+sessionID)
	}
	if s.OwnerUserID != actingUserID {
		return nil, errs.New(errs.Unauthorized, "intercept.owned_session", "session "+sessionID+" is owned by a different user")
	}
	return s, nil
}
