package intercept

import (
	"context"
	"time"

	"overseer/internal/rendezvous"
)

// WaitResult is the standby tool's output shape.
type WaitResult struct {
	Status      string // "resumed" | "timeout"
	Instruction string
}

// WaitDecision is the Decision payload an operator resolves a wait
// rendezvous entry with. The string "stop" is a valid Instruction meaning
// "end the session" — Wait itself doesn't interpret it, the caller does.
type WaitDecision struct {
	Instruction string
}

// Wait implements the standby tool. Unlike Approval and Prompt, a session
// has at most one outstanding wait at a time, so the rendezvous entry is
// keyed by sessionID itself rather than a freshly minted request id — the
// local IPC's bare "resume" command has no other way to address it.
// timeoutSeconds == 0 means block indefinitely (spec.md §4.10).
func (h *Handlers) Wait(ctx context.Context, sessionID, actingUserID string, timeoutSeconds int) (WaitResult, error) {
	if _, err := h.ownedSession(ctx, sessionID, actingUserID); err != nil {
		return WaitResult{}, err
	}

	waitCtx := ctx
	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
	}

	decision, err := h.Rendez.RegisterAndReceive(waitCtx, rendezvous.Wait, sessionID)
	if err != nil {
		return WaitResult{Status: "timeout"}, nil
	}
	wd, ok := decision.(WaitDecision)
	if !ok {
		// Synthetic interruption or unrecognised payload: no instruction
		// to resume with.
		return WaitResult{Status: "timeout"}, nil
	}
	return WaitResult{Status: "resumed", Instruction: wd.Instruction}, nil
}

// ResolveWait completes the rendezvous entry an outstanding Wait call
// registered for sessionID.
func (h *Handlers) ResolveWait(sessionID, instruction string) error {
	return h.Rendez.Resolve(rendezvous.Wait, sessionID, WaitDecision{Instruction: instruction})
}
