// Package stall implements the Stall Detector (C8): one cooperative timer
// task per active session that watches for inactivity and escalates through
// a bounded number of automatic nudges before giving up and asking the
// operator.
//
// Grounded on the teacher's pkg/limiter.Limiter's time.AfterFunc/time.Timer
// daily-reset idiom, generalized from a single recurring reset into a
// multi-stage state machine (Idle -> Stalled -> Nudging(k) -> Escalated)
// driven by one long-lived select loop instead of a chain of AfterFunc
// callbacks, so reset/pause/resume can be applied without a data race against
// a callback that might already be running.
package stall

import (
	"context"
	"sync"
	"time"
)

// EventKind enumerates the detector's output events (spec.md §4.8).
type EventKind string

const (
	EventStalled       EventKind = "stalled"
	EventAutoNudge     EventKind = "auto_nudge"
	EventEscalated     EventKind = "escalated"
	EventSelfRecovered EventKind = "self_recovered"
)

// Event is emitted on the detector's shared output channel. Not every field
// applies to every Kind: IdleSeconds is set only on Stalled, NudgeCount only
// on AutoNudge and Escalated.
type Event struct {
	Kind        EventKind
	SessionID   string
	IdleSeconds int
	NudgeCount  int
}

type phase int

const (
	phaseIdle phase = iota
	phaseStalled
	phaseNudging
	phaseEscalated
)

// Detector is one session's stall-detection state machine. A Detector must
// be started with Run and is safe to drive concurrently from Reset, Pause,
// and Resume while Run is executing.
type Detector struct {
	sessionID           string
	inactivityThreshold time.Duration
	escalationThreshold time.Duration
	maxRetries          int
	events              chan<- Event

	resetCh  chan struct{}
	pauseCh  chan struct{}
	resumeCh chan struct{}

	mu         sync.Mutex
	ph         phase
	nudgeCount int
	paused     bool
}

// New constructs a Detector for sessionID. events is the shared mpsc output
// channel; callers typically fan many Detectors into one buffered channel
// and drain it in a single consumer goroutine.
func New(sessionID string, inactivityThreshold, escalationThreshold time.Duration, maxRetries int, events chan<- Event) *Detector {
	return &Detector{
		sessionID:           sessionID,
		inactivityThreshold: inactivityThreshold,
		escalationThreshold: escalationThreshold,
		maxRetries:          maxRetries,
		events:              events,
		resetCh:             make(chan struct{}, 1),
		pauseCh:             make(chan struct{}, 1),
		resumeCh:            make(chan struct{}, 1),
	}
}

// Run drives the timer loop until ctx is cancelled (external cancellation —
// spec.md §4.8 ties this to the session-termination fan-out cancelling the
// session's scope). Run blocks; call it in its own goroutine.
func (d *Detector) Run(ctx context.Context) {
	timer := time.NewTimer(d.inactivityThreshold)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-d.resetCh:
			wasArmed := d.snapshotPhase() != phaseIdle
			d.setPhase(phaseIdle, 0)
			if wasArmed {
				d.emit(Event{Kind: EventSelfRecovered, SessionID: d.sessionID})
			}
			if !d.isPaused() {
				stopTimer(timer)
				timer.Reset(d.inactivityThreshold)
			}

		case <-d.pauseCh:
			d.setPaused(true)
			stopTimer(timer)

		case <-d.resumeCh:
			d.setPaused(false)
			stopTimer(timer)
			if d.snapshotPhase() == phaseIdle {
				timer.Reset(d.inactivityThreshold)
			} else if d.snapshotPhase() != phaseEscalated {
				timer.Reset(d.escalationThreshold)
			}

		case <-timer.C:
			if d.isPaused() {
				continue
			}
			d.onFire(timer)
		}
	}
}

func (d *Detector) onFire(timer *time.Timer) {
	switch d.snapshotPhase() {
	case phaseIdle:
		d.setPhase(phaseStalled, 0)
		d.emit(Event{Kind: EventStalled, SessionID: d.sessionID, IdleSeconds: int(d.inactivityThreshold.Seconds())})
		timer.Reset(d.escalationThreshold)

	case phaseStalled, phaseNudging:
		nudge := d.nudgeCountLocked() + 1
		if nudge > d.maxRetries {
			d.setPhase(phaseEscalated, nudge)
			d.emit(Event{Kind: EventEscalated, SessionID: d.sessionID, NudgeCount: nudge})
			return
		}
		d.setPhase(phaseNudging, nudge)
		d.emit(Event{Kind: EventAutoNudge, SessionID: d.sessionID, NudgeCount: nudge})
		timer.Reset(d.escalationThreshold)

	case phaseEscalated:
		// No further automatic events once escalated; only Reset clears this.
	}
}

func (d *Detector) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		// Shared channel is full; dropping a stall event is preferable to
		// blocking the detector loop and missing the next deadline.
	}
}

// Reset clears the detector back to Idle and restarts the inactivity timer,
// signalling SelfRecovered if it had been Stalled, Nudging, or Escalated.
// Call this on any observed agent activity.
func (d *Detector) Reset() {
	select {
	case d.resetCh <- struct{}{}:
	default:
	}
}

// Pause suspends all future events until Resume (spec.md §4.8: "pause while
// armed suspends all future events until resume").
func (d *Detector) Pause() {
	select {
	case d.pauseCh <- struct{}{}:
	default:
	}
}

// Resume re-arms the detector from wherever Pause caught it.
func (d *Detector) Resume() {
	select {
	case d.resumeCh <- struct{}{}:
	default:
	}
}

// IsStalled reports whether the detector is anywhere past Idle.
func (d *Detector) IsStalled() bool {
	return d.snapshotPhase() != phaseIdle
}

func (d *Detector) snapshotPhase() phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ph
}

func (d *Detector) nudgeCountLocked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nudgeCount
}

func (d *Detector) setPhase(p phase, nudgeCount int) {
	d.mu.Lock()
	d.ph = p
	d.nudgeCount = nudgeCount
	d.mu.Unlock()
}

func (d *Detector) isPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

func (d *Detector) setPaused(v bool) {
	d.mu.Lock()
	d.paused = v
	d.mu.Unlock()
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
