package rpc

import (
	"context"
	"encoding/json"

	"overseer/internal/intercept"
	"overseer/internal/policy"
	"overseer/internal/store"
)

// Dispatcher binds one session context (spec.md §4.12: "each connection is
// an independent session context") to the shared intercept.Handlers, and
// turns tools/call requests into handler invocations.
type Dispatcher struct {
	Handlers     *intercept.Handlers
	SessionID    string
	ActingUserID string
}

// NewDispatcher builds a Dispatcher scoped to one session.
func NewDispatcher(h *intercept.Handlers, sessionID, actingUserID string) *Dispatcher {
	return &Dispatcher{Handlers: h, SessionID: sessionID, ActingUserID: actingUserID}
}

// Handle decodes one JSON-RPC request and returns its response, or nil for
// a notification (no id) that needs no reply.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResponse(nil, codeParseError, "parse error", err.Error())
	}

	switch req.Method {
	case "initialize":
		return result(req.ID, map[string]interface{}{
			"protocolVersion": "2026-01",
			"serverInfo":      map[string]interface{}{"name": "overseer", "version": "1.0.0"},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, map[string]interface{}{"tools": Tools})
	case "tools/call":
		return d.handleToolsCall(ctx, &req)
	default:
		if req.ID == nil {
			return nil
		}
		return errResponse(req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, codeInvalidParams, "invalid params", err.Error())
	}

	out, err := d.dispatch(ctx, params.Name, params.Arguments)
	if err != nil {
		return errResponse(req.ID, codeMethodNotFound, "tool not found", err.Error())
	}
	return result(req.ID, out)
}

// dispatch routes one named tool call to its intercept.Handlers method.
// The second return value is non-nil only for framing failures (unknown
// tool name, malformed arguments) — a handler's own business error is
// folded into the returned payload per spec.md §7, never surfaced here.
func (d *Dispatcher) dispatch(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "request_approval":
		return d.callApproval(ctx, args)
	case "check_diff":
		return d.callApplyDiff(ctx, args)
	case "forward_prompt":
		return d.callPrompt(ctx, args)
	case "standby":
		return d.callWait(ctx, args)
	case "ping":
		return d.callHeartbeat(ctx, args)
	case "auto_check":
		return d.callAutoCheck(ctx, args)
	case "switch_freq":
		return d.callSetMode(ctx, args)
	case "recover_state":
		return d.callReboot(ctx, args)
	default:
		return nil, errUnknownTool(name)
	}
}

type unknownToolError struct{ name string }

func (e *unknownToolError) Error() string { return "unknown tool: " + e.name }
func errUnknownTool(name string) error    { return &unknownToolError{name: name} }

// --- request_approval ---

type approvalParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Diff        string `json:"diff"`
	FilePath    string `json:"file_path"`
	RiskLevel   string `json:"risk_level,omitempty"`
}

func (d *Dispatcher) callApproval(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p approvalParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	in := intercept.ApprovalInput{
		Title:       p.Title,
		Description: p.Description,
		DiffContent: p.Diff,
		FilePath:    p.FilePath,
		RiskLevel:   store.RiskLevel(p.RiskLevel),
	}
	res, err := d.Handlers.Approval(ctx, d.SessionID, d.ActingUserID, in)
	if err != nil {
		return businessError("approval", err), nil
	}
	return res, nil
}

// --- check_diff ---

type applyDiffParams struct {
	RequestID string `json:"request_id"`
	Force     bool   `json:"force,omitempty"`
}

func (d *Dispatcher) callApplyDiff(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p applyDiffParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	res, err := d.Handlers.ApplyDiff(ctx, d.SessionID, d.ActingUserID, p.RequestID, p.Force)
	if err != nil {
		return businessError("check_diff", err), nil
	}
	return res, nil
}

// --- forward_prompt ---

type promptParams struct {
	PromptText     string  `json:"prompt_text"`
	PromptType     string  `json:"prompt_type,omitempty"`
	ElapsedSeconds *int    `json:"elapsed_seconds,omitempty"`
	ActionsTaken   *string `json:"actions_taken,omitempty"`
}

func (d *Dispatcher) callPrompt(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p promptParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	in := intercept.PromptInput{
		PromptText:     p.PromptText,
		PromptType:     store.PromptType(p.PromptType),
		ElapsedSeconds: p.ElapsedSeconds,
		ActionsTaken:   p.ActionsTaken,
	}
	res, err := d.Handlers.Prompt(ctx, d.SessionID, d.ActingUserID, in)
	if err != nil {
		return businessError("forward_prompt", err), nil
	}
	return res, nil
}

// --- standby ---

type waitParams struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

func (d *Dispatcher) callWait(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p waitParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
	}
	res, err := d.Handlers.Wait(ctx, d.SessionID, d.ActingUserID, p.TimeoutSeconds)
	if err != nil {
		return businessError("standby", err), nil
	}
	return res, nil
}

// --- ping ---

type heartbeatParams struct {
	Progress []store.ProgressStep `json:"progress,omitempty"`
}

func (d *Dispatcher) callHeartbeat(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p heartbeatParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
	}
	res, err := d.Handlers.Heartbeat(ctx, d.ActingUserID, p.Progress)
	if err != nil {
		return businessError("ping", err), nil
	}
	return res, nil
}

// --- auto_check ---

type autoCheckParams struct {
	ToolName  string `json:"tool_name"`
	FilePath  string `json:"file_path,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`
}

func (d *Dispatcher) callAutoCheck(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p autoCheckParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	evalCtx := policy.EvalContext{FilePath: p.FilePath, RiskLevel: store.RiskLevel(p.RiskLevel)}
	res, err := d.Handlers.AutoCheck(ctx, d.SessionID, d.ActingUserID, p.ToolName, evalCtx)
	if err != nil {
		return businessError("auto_check", err), nil
	}
	return res, nil
}

// --- switch_freq ---

type setModeParams struct {
	Mode string `json:"mode"`
}

func (d *Dispatcher) callSetMode(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p setModeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	res, err := d.Handlers.SetMode(ctx, d.SessionID, d.ActingUserID, store.SessionMode(p.Mode))
	if err != nil {
		return businessError("switch_freq", err), nil
	}
	return res, nil
}

// --- recover_state ---

type rebootParams struct {
	SessionID *string `json:"session_id,omitempty"`
}

func (d *Dispatcher) callReboot(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p rebootParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
	}
	sessionID := p.SessionID
	if sessionID == nil && d.SessionID != "" {
		sessionID = &d.SessionID
	}
	res, err := d.Handlers.Reboot(ctx, sessionID, d.ActingUserID)
	if err != nil {
		return businessError("recover_state", err), nil
	}
	return res, nil
}
