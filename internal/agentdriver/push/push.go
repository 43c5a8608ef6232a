// Package push implements the Agent Driver (C6) push model: the supervisor
// spawns the agent as a child process with stdio pipes and speaks a
// line-delimited JSON-RPC-like protocol to it (spec.md §4.6).
//
// Grounded on the teacher's pkg/exec.LocalExec (command construction,
// explicit environment slice rather than passthrough) and
// pkg/coder/claude/parser.go's bufio.Scanner-based line streaming,
// generalized from one-shot buffered/streamed command output into a
// long-lived bidirectional NDJSON conversation with a startup handshake.
package push

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"overseer/internal/errs"
	"overseer/internal/ids"
	"overseer/internal/wire"
	"overseer/pkg/logx"
)

const maxLineBytes = 1 << 20 // 1 MiB, spec.md §4.6

// Config configures a spawned push-model agent.
type Config struct {
	Command       string
	Args          []string
	WorkspaceRoot string
	SupervisorEnv string // "KEY=VALUE", the one supervisor variable allowed through
	ReadyTimeout  time.Duration
	InitTimeout   time.Duration
	InitialPrompt string
	SessionID     string
	UsePTY        bool // route the child through a pseudo-terminal (see pty.go)
}

// Driver is the push-model implementation of wire.Driver, one per spawned
// child. kill_on_drop is implemented by Close killing the child process if
// it is still alive.
type Driver struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan wire.AgentEvent
	logger *logx.Logger

	writeCh chan line
	cancel  context.CancelFunc

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	sessionID string
}

// Spawn starts the child, clears and re-injects its environment, and runs
// the startup handshake (ready -> initialize -> initialized -> prompt/send)
// before returning. Empty or whitespace prompts are rejected before spawn.
// Any handshake step timing out kills the child and returns an error.
func Spawn(ctx context.Context, cfg Config) (*Driver, error) {
	if strings.TrimSpace(cfg.InitialPrompt) == "" {
		return nil, errs.New(errs.Protocol, "push.spawn", "initial prompt is empty or whitespace")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorkspaceRoot
	cmd.Env = BuildChildEnv(cfg.SupervisorEnv)

	var stdin io.WriteCloser
	var stdout io.Reader

	if cfg.UsePTY {
		ptmx, err := SpawnPTY(cmd)
		if err != nil {
			cancel()
			return nil, err
		}
		stdin, stdout = ptmx, ptmx
	} else {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			cancel()
			return nil, errs.Wrap(errs.IO, "push.spawn", err)
		}
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			cancel()
			return nil, errs.Wrap(errs.IO, "push.spawn", err)
		}
		cmd.Stderr = nil

		if err := cmd.Start(); err != nil {
			cancel()
			return nil, errs.Wrap(errs.IO, "push.spawn", fmt.Errorf("start child: %w", err))
		}
	}

	d := &Driver{
		cmd:       cmd,
		stdin:     stdin,
		events:    make(chan wire.AgentEvent, 64),
		logger:    logx.NewLogger("agentdriver.push"),
		writeCh:   make(chan line, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
		sessionID: cfg.SessionID,
	}

	reader := bufio.NewScanner(stdout)
	reader.Buffer(make([]byte, 0, 64*1024), maxLineBytes+1)

	go d.writeLoop()

	if err := d.handshake(reader, cfg); err != nil {
		d.killAndWait()
		return nil, err
	}

	go d.readLoop(reader)

	return d, nil
}

func (d *Driver) handshake(reader *bufio.Scanner, cfg Config) error {
	readyCh := make(chan error, 1)
	go func() {
		if !reader.Scan() {
			readyCh <- fmt.Errorf("stream closed before ready line: %w", reader.Err())
			return
		}
		readyCh <- nil
	}()

	select {
	case err := <-readyCh:
		if err != nil {
			return errs.Wrap(errs.Protocol, "push.handshake", err)
		}
	case <-time.After(cfg.ReadyTimeout):
		return errs.New(errs.Protocol, "push.handshake", "timed out waiting for ready line")
	}

	initID := ids.New("init")
	params, _ := json.Marshal(initializeParams{
		ProcessID:    d.cmd.Process.Pid,
		ClientInfo:   "overseer",
		WorkspaceURI: "file://" + cfg.WorkspaceRoot,
	})
	d.writeCh <- line{ID: initID, Method: "initialize", Params: params}

	replyCh := make(chan error, 1)
	go func() {
		if !reader.Scan() {
			replyCh <- fmt.Errorf("stream closed before initialized reply: %w", reader.Err())
			return
		}
		var l line
		if err := json.Unmarshal(reader.Bytes(), &l); err != nil {
			replyCh <- fmt.Errorf("malformed initialized reply: %w", err)
			return
		}
		if l.Method != "initialized" {
			replyCh <- fmt.Errorf("expected initialized reply, got method %q", l.Method)
			return
		}
		replyCh <- nil
	}()

	select {
	case err := <-replyCh:
		if err != nil {
			return errs.Wrap(errs.Protocol, "push.handshake", err)
		}
	case <-time.After(cfg.InitTimeout):
		return errs.New(errs.Protocol, "push.handshake", "timed out waiting for initialized reply")
	}

	promptParams, _ := json.Marshal(promptSendParams{SessionID: cfg.SessionID, Text: cfg.InitialPrompt})
	d.writeCh <- line{Method: "prompt/send", Params: promptParams}

	return nil
}

func (d *Driver) writeLoop() {
	for l := range d.writeCh {
		raw, err := json.Marshal(l)
		if err != nil {
			d.logger.Debug("push driver: failed to marshal outbound line: %v", err)
			continue
		}
		raw = append(raw, '\n')
		if _, err := d.stdin.Write(raw); err != nil {
			d.logger.Debug("push driver: write to child stdin failed: %v", err)
			return
		}
	}
}

func (d *Driver) readLoop(reader *bufio.Scanner) {
	defer close(d.events)
	defer close(d.done)

	for reader.Scan() {
		raw := reader.Bytes()
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			d.logger.Debug("push driver: malformed JSON line dropped: %v", err)
			continue
		}
		d.dispatch(l)
	}

	if err := reader.Err(); err != nil && strings.Contains(err.Error(), "too long") {
		d.logger.Debug("push driver: line exceeded %d bytes, closing stream", maxLineBytes)
	}

	d.events <- wire.AgentEvent{
		Kind:      wire.EventSessionTerminated,
		SessionID: d.sessionID,
		Reason:    "stream closed",
	}
}

func (d *Driver) dispatch(l line) {
	switch l.Method {
	case "clearance/request":
		var p clearanceParams
		if err := json.Unmarshal(l.Params, &p); err != nil {
			d.logger.Debug("push driver: malformed clearance/request params: %v", err)
			return
		}
		d.events <- wire.AgentEvent{
			Kind: wire.EventClearanceRequested, RequestID: p.RequestID, SessionID: p.SessionID,
			Title: p.Title, Description: p.Description, Diff: p.Diff, FilePath: p.FilePath, RiskLevel: p.RiskLevel,
		}
	case "status/update":
		var p statusParams
		if err := json.Unmarshal(l.Params, &p); err != nil {
			return
		}
		d.events <- wire.AgentEvent{Kind: wire.EventStatusUpdated, SessionID: p.SessionID, Message: p.Message}
	case "prompt/forward":
		var p promptForwardParams
		if err := json.Unmarshal(l.Params, &p); err != nil {
			return
		}
		d.events <- wire.AgentEvent{
			Kind: wire.EventPromptForwarded, SessionID: p.SessionID, PromptID: p.PromptID,
			PromptText: p.PromptText, PromptType: p.PromptType,
		}
	case "heartbeat":
		var p heartbeatParams
		if err := json.Unmarshal(l.Params, &p); err != nil {
			return
		}
		d.events <- wire.AgentEvent{Kind: wire.EventHeartbeatReceived, SessionID: p.SessionID, Progress: p.Progress}
	case "initialized":
		// Only expected during the handshake, already consumed there.
		return
	case "":
		// A bare reply line with no method (e.g. an ack) outside the
		// handshake carries nothing this driver acts on.
		return
	default:
		d.logger.Debug("push driver: unknown method %q dropped", l.Method)
	}
}

func (d *Driver) Events() <-chan wire.AgentEvent {
	return d.events
}

func (d *Driver) ResolveClearance(requestID string, approved bool, reason string) error {
	params, _ := json.Marshal(clearanceResponseParams{RequestID: requestID, Approved: approved, Reason: reason})
	return d.send(line{Method: "clearance/response", Params: params})
}

func (d *Driver) ResolvePrompt(promptID, decision, instruction string) error {
	params, _ := json.Marshal(promptResponseParams{PromptID: promptID, Decision: decision, Instruction: instruction})
	return d.send(line{Method: "prompt/response", Params: params})
}

// SendPrompt pushes additional operator text to the agent mid-session.
func (d *Driver) SendPrompt(sessionID, text string) error {
	params, _ := json.Marshal(promptSendParams{SessionID: sessionID, Text: text})
	return d.send(line{Method: "prompt/send", Params: params})
}

// Interrupt cancels the child's run context, killing the process. Always
// succeeds, including on an already-terminated child (T024).
func (d *Driver) Interrupt(sessionID string) error {
	d.cancel()
	return nil
}

func (d *Driver) send(l line) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return errs.New(errs.NotFound, "push.send", "driver is closed")
	}
	select {
	case d.writeCh <- l:
		return nil
	case <-d.done:
		return errs.New(errs.NotFound, "push.send", "agent stream already closed")
	}
}

// Close terminates the child (kill_on_drop) and releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.writeCh)
	d.killAndWait()
	return nil
}

func (d *Driver) killAndWait() {
	d.cancel()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
}
