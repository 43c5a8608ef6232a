package store

import (
	"context"
	"time"
)

// Store aggregates the seven narrow repositories spec.md §4.1 calls for.
// Both the sqlite and memory backends implement this in full.
type Store interface {
	Sessions() SessionRepo
	Approvals() ApprovalRepo
	Prompts() PromptRepo
	StallAlerts() StallAlertRepo
	Checkpoints() CheckpointRepo
	Steering() SteeringRepo
	Inbox() InboxRepo

	// Close releases any resources the backend holds (file handles, pools).
	Close() error
}

// SessionRepo is the Session entity's repository.
type SessionRepo interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// Delete cascades to approvals, prompts, stall alerts, and checkpoints
	// owned by the session (spec.md §3's cascading-ownership rule).
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status SessionStatus) ([]*Session, error)
	ListActive(ctx context.Context) ([]*Session, error)
	// ListTerminatedBefore returns terminated sessions whose terminated_at predates
	// cutoff, for the retention worker (spec.md §4.11).
	ListTerminatedBefore(ctx context.Context, cutoff time.Time) ([]*Session, error)
	CountActive(ctx context.Context) (int, error)
}

// ApprovalRepo is the Approval Request entity's repository.
type ApprovalRepo interface {
	Create(ctx context.Context, a *ApprovalRequest) error
	Get(ctx context.Context, id string) (*ApprovalRequest, error)
	Update(ctx context.Context, a *ApprovalRequest) error
	ListBySession(ctx context.Context, sessionID string) ([]*ApprovalRequest, error)
	ListPendingBySession(ctx context.Context, sessionID string) ([]*ApprovalRequest, error)
}

// PromptRepo is the Continuation Prompt entity's repository.
type PromptRepo interface {
	Create(ctx context.Context, p *ContinuationPrompt) error
	Get(ctx context.Context, id string) (*ContinuationPrompt, error)
	Update(ctx context.Context, p *ContinuationPrompt) error
	ListBySession(ctx context.Context, sessionID string) ([]*ContinuationPrompt, error)
}

// StallAlertRepo is the Stall Alert entity's repository.
type StallAlertRepo interface {
	Create(ctx context.Context, a *StallAlert) error
	Get(ctx context.Context, id string) (*StallAlert, error)
	Update(ctx context.Context, a *StallAlert) error
	// GetOpenBySession returns the non-terminal alert for the session, if
	// any — spec.md §3 guarantees at most one exists.
	GetOpenBySession(ctx context.Context, sessionID string) (*StallAlert, error)
	ListBySession(ctx context.Context, sessionID string) ([]*StallAlert, error)
}

// CheckpointRepo is the Checkpoint entity's repository.
type CheckpointRepo interface {
	Create(ctx context.Context, c *Checkpoint) error
	Get(ctx context.Context, id string) (*Checkpoint, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Checkpoint, error)
	LatestBySession(ctx context.Context, sessionID string) (*Checkpoint, error)
}

// SteeringRepo is the Steering Message entity's repository. Messages are not
// cascade-deleted on session termination (spec.md §3) so this repo has no
// cascading delete path of its own.
type SteeringRepo interface {
	Create(ctx context.Context, m *SteeringMessage) error
	// ListUnconsumed returns unconsumed messages for a session in FIFO
	// (created_at) order.
	ListUnconsumed(ctx context.Context, sessionID string) ([]*SteeringMessage, error)
	MarkConsumed(ctx context.Context, id string) error
}

// InboxRepo is the Task Inbox Item entity's repository.
type InboxRepo interface {
	Create(ctx context.Context, i *TaskInboxItem) error
	// ListUnconsumedForChannel returns unconsumed items visible to
	// channelID: items scoped to channelID plus global (channel_id = NULL)
	// items, in FIFO order.
	ListUnconsumedForChannel(ctx context.Context, channelID string) ([]*TaskInboxItem, error)
	MarkConsumed(ctx context.Context, id string) error
}
