// Package store defines the repository contracts for every persisted entity
// in the supervisor (spec.md §3) and the narrow interfaces each repository
// exposes (spec.md §4.1). Concrete backends live in the sqlite and memory
// subpackages; this package only carries the shapes and the status enums the
// state machines in internal/session, internal/stall, and internal/intercept
// drive.
package store

import "time"

// SessionStatus enumerates the DAG spec.md §3 pins down.
type SessionStatus string

const (
	SessionCreated     SessionStatus = "created"
	SessionActive      SessionStatus = "active"
	SessionPaused      SessionStatus = "paused"
	SessionTerminated  SessionStatus = "terminated"
	SessionInterrupted SessionStatus = "interrupted"
)

// SessionMode is the routing policy a session was created with (spec.md §6).
type SessionMode string

const (
	ModeRemote SessionMode = "remote"
	ModeLocal  SessionMode = "local"
	ModeHybrid SessionMode = "hybrid"
)

// ProtocolMode names the agent-driver wire protocol a session uses (spec.md §4.6).
type ProtocolMode string

const (
	ProtocolPull ProtocolMode = "pull"
	ProtocolPush ProtocolMode = "push"
)

// ConnectivityStatus tracks whether a session's transport is reachable.
type ConnectivityStatus string

const (
	ConnectivityOnline  ConnectivityStatus = "online"
	ConnectivityOffline ConnectivityStatus = "offline"
	ConnectivityStalled ConnectivityStatus = "stalled"
)

// ProgressStep is one entry of Session.progress_snapshot.
type ProgressStep struct {
	Label  string `json:"label"`
	Status string `json:"status"` // done | in_progress | pending
}

// Session is the spec.md §3 Session entity.
type Session struct {
	ID                 string
	OwnerUserID        string
	WorkspaceRoot      string
	Status             SessionStatus
	Prompt             *string
	Mode               SessionMode
	ProtocolMode       ProtocolMode
	ChannelID          *string
	ThreadTS           *string // write-once
	ConnectivityStatus ConnectivityStatus
	ProgressSnapshot   []ProgressStep
	NudgeCount         int
	StallPaused        bool
	LastTool           *string
	LastActivityAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	TerminatedAt       *time.Time
	RestartOf          *string
}

// RiskLevel is the risk classification attached to approval requests.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ApprovalStatus enumerates the Approval Request state machine (spec.md §3).
type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
	ApprovalExpired     ApprovalStatus = "expired"
	ApprovalConsumed    ApprovalStatus = "consumed"
	ApprovalInterrupted ApprovalStatus = "interrupted"
)

// NewFileSentinel is the original_hash value used for a request that creates
// a file that does not yet exist (spec.md §3).
const NewFileSentinel = "new_file"

// ApprovalRequest is the spec.md §3 Approval Request entity.
type ApprovalRequest struct {
	ID           string
	SessionID    string
	Title        string
	Description  *string
	DiffContent  string
	FilePath     string
	RiskLevel    RiskLevel
	Status       ApprovalStatus
	OriginalHash string
	ChatTS       *string
	CreatedAt    time.Time
	ConsumedAt   *time.Time
}

// PromptType enumerates the kinds of continuation prompt (spec.md §3).
type PromptType string

const (
	PromptContinuation   PromptType = "continuation"
	PromptClarification  PromptType = "clarification"
	PromptErrorRecovery  PromptType = "error_recovery"
	PromptResourceWarn   PromptType = "resource_warning"
)

// PromptDecision is the operator's answer to a continuation prompt.
type PromptDecision string

const (
	DecisionContinue PromptDecision = "continue"
	DecisionRefine   PromptDecision = "refine"
	DecisionStop     PromptDecision = "stop"
)

// ContinuationPrompt is the spec.md §3 Continuation Prompt entity.
type ContinuationPrompt struct {
	ID             string
	SessionID      string
	PromptText     string
	PromptType     PromptType
	ElapsedSeconds *int
	ActionsTaken   *string
	Decision       *PromptDecision
	Instruction    *string // present iff Decision == Refine
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// StallAlertStatus enumerates the stall-alert lifecycle (spec.md §3, §4.8).
type StallAlertStatus string

const (
	StallPending       StallAlertStatus = "pending"
	StallNudged        StallAlertStatus = "nudged"
	StallSelfRecovered StallAlertStatus = "self_recovered"
	StallEscalated     StallAlertStatus = "escalated"
	StallDismissed     StallAlertStatus = "dismissed"
)

// StallAlertTerminalStatuses lists every status that is not "still open".
var StallAlertTerminalStatuses = map[StallAlertStatus]bool{
	StallSelfRecovered: true,
	StallEscalated:     true,
	StallDismissed:     true,
}

// StallAlert is the spec.md §3 Stall Alert entity.
type StallAlert struct {
	ID               string
	SessionID        string
	LastTool         *string
	LastActivityAt   time.Time
	IdleSeconds      int
	NudgeCount       int
	Status           StallAlertStatus
	ProgressSnapshot []ProgressStep
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Checkpoint is the spec.md §3 Checkpoint entity.
type Checkpoint struct {
	ID               string
	SessionID        string
	Label            *string
	SessionState     []byte // arbitrary JSON
	FileHashes       map[string]string
	WorkspaceRoot    string
	ProgressSnapshot []ProgressStep
	CreatedAt        time.Time
}

// SteeringSource names where an unsolicited operator message arrived from.
type SteeringSource string

const (
	SourceSlack SteeringSource = "slack"
	SourceIPC   SteeringSource = "ipc"
)

// SteeringMessage is the spec.md §3 Steering Message entity.
type SteeringMessage struct {
	ID        string
	SessionID string
	ChannelID *string
	Message   string
	Source    SteeringSource
	Consumed  bool
	CreatedAt time.Time
}

// TaskInboxItem is the spec.md §3 Task Inbox Item entity. ChannelID == nil
// means the item is global: visible to every channel-scoped fetch.
type TaskInboxItem struct {
	ID        string
	ChannelID *string
	Message   string
	Source    SteeringSource
	Consumed  bool
	CreatedAt time.Time
}
