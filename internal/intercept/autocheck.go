package intercept

import (
	"context"

	"overseer/internal/policy"
	"overseer/internal/store"
)

// AutoCheckResult is the auto_check tool's output shape.
type AutoCheckResult struct {
	AutoApproved bool
	MatchedRule  string
}

// AutoCheck implements the auto_check tool: a read-only policy-cache
// lookup, no persistence (spec.md §4.10).
func (h *Handlers) AutoCheck(ctx context.Context, sessionID, actingUserID, toolName string, evalCtx policy.EvalContext) (AutoCheckResult, error) {
	s, err := h.ownedSession(ctx, sessionID, actingUserID)
	if err != nil {
		return AutoCheckResult{}, err
	}
	if evalCtx.RiskLevel == "" {
		evalCtx.RiskLevel = store.RiskLow
	}

	compiled := h.Policy.Read(s.WorkspaceRoot)
	result := compiled.Evaluate(toolName, evalCtx)
	return AutoCheckResult{AutoApproved: result.AutoApproved, MatchedRule: result.MatchedRule}, nil
}
