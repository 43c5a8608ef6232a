// Package rpc implements the JSON-RPC-style dispatch shared by the Pull
// driver's two ingress paths (stdio and streamable HTTP, spec.md §4.12):
// a `tools/list` call surfacing each intercept handler's name and
// description, and a
// `tools/call` that decodes the named tool's input and invokes the
// matching internal/intercept.Handlers method.
//
// Grounded on the teacher's pkg/coder/claude/mcpserver.Server — the same
// JSONRPCRequest/JSONRPCResponse envelope, the same initialize/tools-list/
// tools-call method switch — generalized from a single flat tool registry
// to the eight fixed intercept-handler kinds spec.md §4.10 names.
package rpc

import (
	"encoding/json"

	"overseer/internal/errs"
)

// Request is one JSON-RPC 2.0 request (or notification, when ID is nil).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

func result(id interface{}, v interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: v}
}

func errResponse(id interface{}, code int, message, data string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

// toolError is the {status:"error", error_code, error_message} shape
// spec.md §7 mandates for any leaf error surfaced at the tool boundary.
type toolError struct {
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func businessError(op string, err error) toolError {
	return toolError{
		Status:       "error",
		ErrorCode:    errs.ErrorCode(errs.KindOf(err)),
		ErrorMessage: err.Error(),
	}
}

// ToolMeta describes one tool for `tools/list` (mirrors the teacher's
// mcpTool shape minus the MCP-specific inputSchema nesting this protocol
// doesn't need — each tool's fixed schema is documented in spec.md §4.10
// rather than advertised structurally).
type ToolMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tools enumerates the eight fixed handler kinds, in spec.md §4.10's order.
var Tools = []ToolMeta{
	{Name: "request_approval", Description: "Request operator approval for a proposed diff."},
	{Name: "check_diff", Description: "Apply a previously approved diff to the workspace."},
	{Name: "forward_prompt", Description: "Forward a continuation prompt to the operator."},
	{Name: "standby", Description: "Block until the operator supplies an instruction or the wait times out."},
	{Name: "ping", Description: "Heartbeat: report progress and drain any queued steering messages."},
	{Name: "auto_check", Description: "Evaluate a tool call against the workspace policy cache."},
	{Name: "switch_freq", Description: "Change the session's routing mode (remote, local, hybrid)."},
	{Name: "recover_state", Description: "Recover a session's status and pending work after a restart."},
}
