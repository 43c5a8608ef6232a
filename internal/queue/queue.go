// Package queue implements the Queue Manager (C9): a thin layer over
// internal/store's SteeringRepo and InboxRepo that adds the one piece of
// behavior the store itself can't express — draining a session's unconsumed
// steering messages into outbound prompt/send commands when a push-model
// agent stream (re)connects, before any further agent input is read
// (spec.md §4.9).
//
// Grounded on the teacher's pkg/dispatch queue channels (storyCh,
// questionsCh, pmRequestsCh): buffered channels of pending work with a
// dedicated drain step before new work is accepted, generalized here from
// in-memory channels into store-backed FIFO queues so unconsumed entries
// survive a session restart.
package queue

import (
	"context"
	"time"

	"overseer/internal/errs"
	"overseer/internal/ids"
	"overseer/internal/store"
)

// Manager wraps the Steering and Task Inbox repositories.
type Manager struct {
	store store.Store
}

func New(st store.Store) *Manager {
	return &Manager{store: st}
}

// Steer inserts an operator steering message for a session.
func (m *Manager) Steer(ctx context.Context, sessionID string, channelID *string, message string, source store.SteeringSource) (*store.SteeringMessage, error) {
	if message == "" {
		return nil, errs.New(errs.Protocol, "queue.steer", "message must not be empty")
	}
	msg := &store.SteeringMessage{
		ID:        ids.New(ids.PrefixSteering),
		SessionID: sessionID,
		ChannelID: channelID,
		Message:   message,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Steering().Create(ctx, msg); err != nil {
		return nil, errs.Wrap(errs.Internal, "queue.steer", err)
	}
	return msg, nil
}

// Task inserts a task-inbox item. channelID == nil makes it global.
func (m *Manager) Task(ctx context.Context, channelID *string, message string, source store.SteeringSource) (*store.TaskInboxItem, error) {
	if message == "" {
		return nil, errs.New(errs.Protocol, "queue.task", "message must not be empty")
	}
	item := &store.TaskInboxItem{
		ID:        ids.New(ids.PrefixInbox),
		ChannelID: channelID,
		Message:   message,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Inbox().Create(ctx, item); err != nil {
		return nil, errs.Wrap(errs.Internal, "queue.task", err)
	}
	return item, nil
}

// DrainSteering returns sessionID's unconsumed steering messages in FIFO
// order and marks each consumed. Delivery is at-most-once: a message
// returned here is marked consumed even if the caller never actually sends
// it onward, matching spec.md §4.9's "mark consumed by id (idempotent)" —
// retries are the caller's responsibility, not the queue's.
func (m *Manager) DrainSteering(ctx context.Context, sessionID string) ([]*store.SteeringMessage, error) {
	msgs, err := m.store.Steering().ListUnconsumed(ctx, sessionID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "queue.drain_steering", err)
	}
	for _, msg := range msgs {
		if err := m.store.Steering().MarkConsumed(ctx, msg.ID); err != nil {
			return nil, errs.Wrap(errs.Internal, "queue.drain_steering", err)
		}
	}
	return msgs, nil
}

// DrainInbox returns channelID's unconsumed task-inbox items (global ∪
// channel-scoped) in FIFO order and marks each consumed.
func (m *Manager) DrainInbox(ctx context.Context, channelID string) ([]*store.TaskInboxItem, error) {
	items, err := m.store.Inbox().ListUnconsumedForChannel(ctx, channelID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "queue.drain_inbox", err)
	}
	for _, item := range items {
		if err := m.store.Inbox().MarkConsumed(ctx, item.ID); err != nil {
			return nil, errs.Wrap(errs.Internal, "queue.drain_inbox", err)
		}
	}
	return items, nil
}

// PeekInbox is like DrainInbox but does not mark anything consumed — used
// by the reboot/recover_state handler (C10), which only reports pending
// work without touching it.
func (m *Manager) PeekInbox(ctx context.Context, channelID string) ([]*store.TaskInboxItem, error) {
	items, err := m.store.Inbox().ListUnconsumedForChannel(ctx, channelID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "queue.peek_inbox", err)
	}
	return items, nil
}

// OutboundPromptSender is satisfied by a push-model agent driver (the
// narrow slice of wire.Driver this package needs), kept separate to avoid
// an import cycle back onto internal/agentdriver.
type OutboundPromptSender interface {
	SendPrompt(sessionID, text string) error
}

// ConnectDrain implements the offline-buffering reconnect rule: when a
// push-driver reader task starts (reconnect or initial connect), drain
// every unconsumed steering row for the session in FIFO order, converting
// each into a SendPrompt call, before the caller reads anything further
// from the agent stream (spec.md §4.9). Returns the number of messages
// drained.
func (m *Manager) ConnectDrain(ctx context.Context, sessionID string, sender OutboundPromptSender) (int, error) {
	msgs, err := m.DrainSteering(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		if err := sender.SendPrompt(sessionID, msg.Message); err != nil {
			return 0, errs.Wrap(errs.Internal, "queue.connect_drain", err)
		}
	}
	return len(msgs), nil
}
