package stall

import (
	"context"
	"sync"
	"time"

	"overseer/internal/errs"
)

// Supervisor owns one Detector per active session and the shared event
// channel every Detector emits onto. It is the glue a session manager uses
// to start a detector when a session activates and to look it up again when
// forwarding observed agent activity.
type Supervisor struct {
	inactivityThreshold time.Duration
	escalationThreshold time.Duration
	maxRetries          int
	events              chan Event

	mu        sync.Mutex
	detectors map[string]*Detector
}

// NewSupervisor constructs a Supervisor. bufferSize sizes the shared events
// channel; callers should drain Events continuously.
func NewSupervisor(inactivityThreshold, escalationThreshold time.Duration, maxRetries, bufferSize int) *Supervisor {
	return &Supervisor{
		inactivityThreshold: inactivityThreshold,
		escalationThreshold: escalationThreshold,
		maxRetries:          maxRetries,
		events:              make(chan Event, bufferSize),
		detectors:           make(map[string]*Detector),
	}
}

// Events is the shared mpsc channel every session's detector emits onto.
func (sup *Supervisor) Events() <-chan Event {
	return sup.events
}

// Start installs and runs a detector for sessionID, bound to ctx (the
// session's cancellation scope — spec.md §4.8: "Detector tasks are
// cancelled as part of session termination fan-out"). Starting a detector
// for a session that already has one replaces it.
func (sup *Supervisor) Start(ctx context.Context, sessionID string) {
	d := New(sessionID, sup.inactivityThreshold, sup.escalationThreshold, sup.maxRetries, sup.events)

	sup.mu.Lock()
	sup.detectors[sessionID] = d
	sup.mu.Unlock()

	go func() {
		d.Run(ctx)
		sup.mu.Lock()
		if sup.detectors[sessionID] == d {
			delete(sup.detectors, sessionID)
		}
		sup.mu.Unlock()
	}()
}

// Reset forwards observed activity to sessionID's detector. Returns
// errs.NotFound if no detector is running for the session (e.g. it already
// terminated).
func (sup *Supervisor) Reset(sessionID string) error {
	d, ok := sup.get(sessionID)
	if !ok {
		return errs.New(errs.NotFound, "stall.reset", "no detector for session "+sessionID)
	}
	d.Reset()
	return nil
}

// Pause forwards a pause to sessionID's detector.
func (sup *Supervisor) Pause(sessionID string) error {
	d, ok := sup.get(sessionID)
	if !ok {
		return errs.New(errs.NotFound, "stall.pause", "no detector for session "+sessionID)
	}
	d.Pause()
	return nil
}

// Resume forwards a resume to sessionID's detector.
func (sup *Supervisor) Resume(sessionID string) error {
	d, ok := sup.get(sessionID)
	if !ok {
		return errs.New(errs.NotFound, "stall.resume", "no detector for session "+sessionID)
	}
	d.Resume()
	return nil
}

// IsStalled reports sessionID's detector state; false if no detector is
// running (never started, or already terminated).
func (sup *Supervisor) IsStalled(sessionID string) bool {
	d, ok := sup.get(sessionID)
	if !ok {
		return false
	}
	return d.IsStalled()
}

func (sup *Supervisor) get(sessionID string) (*Detector, bool) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	d, ok := sup.detectors[sessionID]
	return d, ok
}
