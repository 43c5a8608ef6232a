package intercept

import (
	"context"
	"time"

	"overseer/internal/errs"
	"overseer/internal/ids"
	"overseer/internal/rendezvous"
	"overseer/internal/store"
	"overseer/internal/utils"
)

// PromptInput is the forward_prompt tool's input shape.
type PromptInput struct {
	PromptText     string
	PromptType     store.PromptType // defaults to store.PromptContinuation if empty
	ElapsedSeconds *int
	ActionsTaken   *string
}

// PromptResult is the forward_prompt tool's output shape. Instruction is
// set only when Decision is Refine.
type PromptResult struct {
	Decision    store.PromptDecision
	Instruction string
}

// PromptDecisionValue is the Decision payload an operator resolves a prompt
// rendezvous entry with.
type PromptDecisionValue struct {
	Decision    store.PromptDecision
	Instruction string
}

// Prompt implements the forward_prompt tool: same skeleton as Approval, but
// on timeout it synthesises decision = Continue rather than dropping the
// record (spec.md §4.10's table).
func (h *Handlers) Prompt(ctx context.Context, sessionID, actingUserID string, in PromptInput) (PromptResult, error) {
	if _, err := h.ownedSession(ctx, sessionID, actingUserID); err != nil {
		return PromptResult{}, err
	}

	ptype := in.PromptType
	if ptype == "" {
		ptype = store.PromptContinuation
	}

	p := &store.ContinuationPrompt{
		ID:             ids.New(ids.PrefixPrompt),
		SessionID:      sessionID,
		PromptText:     in.PromptText,
		PromptType:     ptype,
		ElapsedSeconds: in.ElapsedSeconds,
		ActionsTaken:   in.ActionsTaken,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.Store.Prompts().Create(ctx, p); err != nil {
		return PromptResult{}, errs.Wrap(errs.Internal, "intercept.prompt", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.Timeouts.Prompt())
	defer cancel()
	decision, err := h.Rendez.RegisterAndReceive(waitCtx, rendezvous.Prompt, p.ID)

	now := time.Now().UTC()
	resolve := func(d store.PromptDecision, instruction *string) PromptResult {
		p.Decision = &d
		p.Instruction = instruction
		p.ResolvedAt = &now
		_ = h.Store.Prompts().Update(ctx, p)
		result := PromptResult{Decision: d}
		if instruction != nil {
			result.Instruction = *instruction
		}
		return result
	}

	if err != nil {
		// Timeout: auto-continue rather than drop the record.
		return resolve(store.DecisionContinue, nil), nil
	}
	if decision == rendezvous.InterruptedDecision {
		// session.fanOutInterrupt already resolved this record to Stop and
		// marked it resolved; report that rather than overwriting it with a
		// synthetic auto-continue.
		stop := store.DecisionStop
		return PromptResult{Decision: stop}, nil
	}
	pd, ok := utils.SafeAssert[PromptDecisionValue](decision)
	if !ok {
		return resolve(store.DecisionContinue, nil), nil
	}
	var instr *string
	if pd.Decision == store.DecisionRefine {
		instr = &pd.Instruction
	}
	return resolve(pd.Decision, instr), nil
}

// ResolvePrompt completes the rendezvous entry an outstanding Prompt call
// registered.
func (h *Handlers) ResolvePrompt(promptID string, decision store.PromptDecision, instruction string) error {
	return h.Rendez.Resolve(rendezvous.Prompt, promptID, PromptDecisionValue{Decision: decision, Instruction: instruction})
}
