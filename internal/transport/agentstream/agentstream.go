// Package agentstream implements the Push driver's agent-stream ingress
// (C12 item 4, spec.md §4.12): one dispatch loop per Push-model session
// that reads wire.AgentEvents off a driver, performs the offline-queue
// drain before handing control to the caller (spec.md §4.9), and routes
// every subsequent event into the matching intercept.Handlers call —
// sending the operator's eventual decision back out through the driver's
// Resolve*/SendPrompt commands.
//
// Grounded on the teacher's internal/kernel.Kernel.processPersistenceRequest
// loop: a single goroutine ranging over a request channel and switching on
// an operation kind, each case doing one unit of domain work and replying
// on its own correlated channel. Generalized here from one struct's request
// enum to wire.AgentEvent's five kinds, and from a synchronous per-request
// reply to Clearance/Prompt requests that block on an operator decision —
// which this loop runs in their own goroutine so a slow approval doesn't
// stall heartbeats or status updates from the same session.
package agentstream

import (
	"context"
	"encoding/json"
	"sync"

	"overseer/internal/childmonitor"
	"overseer/internal/collab"
	"overseer/internal/intercept"
	"overseer/internal/queue"
	"overseer/internal/store"
	"overseer/internal/wire"
	"overseer/pkg/logx"
)

// Session drives one Push-model session's agent stream.
type Session struct {
	SessionID    string
	OwnerUserID  string
	Driver       wire.Driver
	Handlers     *intercept.Handlers
	Queue        *queue.Manager
	Audit        collab.AuditLogger
	ChildMonitor *childmonitor.Monitor
	Log          *logx.Logger
}

// New builds a Session dispatcher. log may be nil, in which case a default
// logger is created.
func New(sessionID, ownerUserID string, driver wire.Driver, h *intercept.Handlers, qm *queue.Manager, audit collab.AuditLogger, mon *childmonitor.Monitor, log *logx.Logger) *Session {
	if log == nil {
		log = logx.NewLogger("transport-agentstream")
	}
	if audit == nil {
		audit = collab.NoopAuditLogger{}
	}
	return &Session{
		SessionID: sessionID, OwnerUserID: ownerUserID, Driver: driver,
		Handlers: h, Queue: qm, Audit: audit, ChildMonitor: mon, Log: log,
	}
}

// Run performs the reconnect drain (spec.md §4.9) then ranges over the
// driver's event stream until it closes (always preceded by a terminal
// SessionTerminated event — see internal/agentdriver/push). It returns once
// the stream ends; the caller does not need to call ChildMonitor itself,
// Run does so internally for the terminal event.
func (s *Session) Run(ctx context.Context) error {
	if s.Queue != nil {
		n, err := s.Queue.ConnectDrain(ctx, s.SessionID, s.Driver)
		if err != nil {
			s.Log.Error("session %s: offline-queue drain failed: %v", s.SessionID, err)
		} else if n > 0 {
			s.Log.Info("session %s: drained %d queued steering message(s) on connect", s.SessionID, n)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for ev := range s.Driver.Events() {
		ev := ev
		switch ev.Kind {
		case wire.EventClearanceRequested:
			wg.Add(1)
			go func() { defer wg.Done(); s.handleClearance(ctx, ev) }()
		case wire.EventPromptForwarded:
			wg.Add(1)
			go func() { defer wg.Done(); s.handlePrompt(ctx, ev) }()
		case wire.EventHeartbeatReceived:
			wg.Add(1)
			go func() { defer wg.Done(); s.handleHeartbeat(ctx, ev) }()
		case wire.EventStatusUpdated:
			_ = s.Audit.WriteEvent(ctx, collab.AuditEvent{
				SessionID: ev.SessionID, Kind: "status_updated",
				Detail: map[string]any{"message": ev.Message},
			})
		case wire.EventSessionTerminated:
			if s.ChildMonitor != nil {
				return s.ChildMonitor.HandleTerminated(ctx, ev, s.OwnerUserID, s.Driver)
			}
			return nil
		}
	}
	return nil
}

func (s *Session) handleClearance(ctx context.Context, ev wire.AgentEvent) {
	res, err := s.Handlers.Approval(ctx, ev.SessionID, s.OwnerUserID, intercept.ApprovalInput{
		Title: ev.Title, Description: ev.Description, DiffContent: ev.Diff,
		FilePath: ev.FilePath, RiskLevel: store.RiskLevel(ev.RiskLevel),
	})
	if err != nil {
		s.Log.Error("session %s: clearance %s failed: %v", ev.SessionID, ev.RequestID, err)
		_ = s.Driver.ResolveClearance(ev.RequestID, false, "internal error")
		return
	}
	approved := res.Status == store.ApprovalApproved
	if err := s.Driver.ResolveClearance(ev.RequestID, approved, res.Reason); err != nil {
		s.Log.Debug("session %s: resolve_clearance: %v", ev.SessionID, err)
	}
}

func (s *Session) handlePrompt(ctx context.Context, ev wire.AgentEvent) {
	res, err := s.Handlers.Prompt(ctx, ev.SessionID, s.OwnerUserID, intercept.PromptInput{
		PromptText: ev.PromptText, PromptType: store.PromptType(ev.PromptType),
	})
	if err != nil {
		s.Log.Error("session %s: prompt %s failed: %v", ev.SessionID, ev.PromptID, err)
		return
	}
	if err := s.Driver.ResolvePrompt(ev.PromptID, string(res.Decision), res.Instruction); err != nil {
		s.Log.Debug("session %s: resolve_prompt: %v", ev.SessionID, err)
	}
}

func (s *Session) handleHeartbeat(ctx context.Context, ev wire.AgentEvent) {
	var progress []store.ProgressStep
	if ev.Progress != "" {
		if err := json.Unmarshal([]byte(ev.Progress), &progress); err != nil {
			s.Log.Debug("session %s: malformed heartbeat progress dropped: %v", ev.SessionID, err)
			progress = nil
		}
	}
	res, err := s.Handlers.Heartbeat(ctx, s.OwnerUserID, progress)
	if err != nil {
		s.Log.Debug("session %s: heartbeat: %v", ev.SessionID, err)
		return
	}
	for _, msg := range res.Drained {
		if err := s.Driver.SendPrompt(ev.SessionID, msg.Message); err != nil {
			s.Log.Debug("session %s: send_prompt (drained steering): %v", ev.SessionID, err)
		}
	}
}
