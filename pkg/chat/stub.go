package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"overseer/pkg/logx"
)

// DefaultMaxMessageChars is the maximum length for a posted chat message body.
const DefaultMaxMessageChars = 4096

// TruncationSuffix is appended to messages that exceed the max length.
const TruncationSuffix = " … [truncated]"

// ApprovalPost is the payload posted to the channel when an approval,
// continuation prompt, or stall escalation needs an operator's attention.
type ApprovalPost struct {
	ChannelID   string
	Title       string
	Description string
	DiffContent string
	FilePath    string
	RiskLevel   string
}

// Posted is a record of one message this stub has sent, kept for tests
// (see Sent).
type Posted struct {
	ChannelID string
	Text      string
	PostedAt  time.Time
}

// Stub is an in-memory ChatPoster. It exists so the core has something to
// drive in tests and in local/offline use without depending on a real chat
// SDK. Production deployments supply their own ChatPoster (out of scope per
// spec.md §1) — this type only has to satisfy the narrow interface the core
// calls through (internal/collab.ChatPoster).
type Stub struct {
	scanner  SecretScanner
	logger   *logx.Logger
	mu       sync.Mutex
	sent     []Posted
	maxChars int
}

// NewStub creates a chat stub with secret scanning enabled.
func NewStub(logger *logx.Logger) *Stub {
	if logger == nil {
		logger = logx.NewLogger("chat")
	}
	return &Stub{
		scanner:  NewPatternScanner(200),
		logger:   logger,
		maxChars: DefaultMaxMessageChars,
	}
}

// PostApprovalRequest renders and "sends" an approval post, returning a
// synthetic chat-thread timestamp the caller can store as Session.thread_ts.
func (s *Stub) PostApprovalRequest(ctx context.Context, req ApprovalPost) (string, error) {
	text := fmt.Sprintf("[%s] %s\n%s\nfile: %s", req.RiskLevel, req.Title, req.Description, req.FilePath)
	if err := s.PostMessage(ctx, req.ChannelID, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%06d", time.Now().Unix(), time.Now().Nanosecond()/1000), nil
}

// PostMessage redacts secrets, truncates to the configured limit, and records
// the message in memory.
func (s *Stub) PostMessage(ctx context.Context, channelID, text string) error {
	if len(text) > s.maxChars {
		text = text[:s.maxChars-len(TruncationSuffix)] + TruncationSuffix
	}

	if s.scanner != nil {
		redacted, err := RedactSecrets(ctx, s.scanner, text)
		if err != nil {
			s.logger.Error("secret scanner failed, posting unredacted: %v", err)
		} else {
			text = redacted
		}
	}

	s.mu.Lock()
	s.sent = append(s.sent, Posted{ChannelID: channelID, Text: text, PostedAt: time.Now().UTC()})
	s.mu.Unlock()

	s.logger.Debug("posted to channel %s: %s", channelID, text)
	return nil
}

// Sent returns a snapshot of every message posted so far, for tests.
func (s *Stub) Sent() []Posted {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Posted, len(s.sent))
	copy(out, s.sent)
	return out
}
