package stall_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/stall"
)

func drain(t *testing.T, ch <-chan stall.Event, timeout time.Duration) stall.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return stall.Event{}
	}
}

func TestStallThenNudgesThenEscalates(t *testing.T) {
	events := make(chan stall.Event, 16)
	d := stall.New("session:1", 20*time.Millisecond, 20*time.Millisecond, 2, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ev := drain(t, events, time.Second)
	require.Equal(t, stall.EventStalled, ev.Kind)
	require.True(t, d.IsStalled())

	ev = drain(t, events, time.Second)
	require.Equal(t, stall.EventAutoNudge, ev.Kind)
	require.Equal(t, 1, ev.NudgeCount)

	ev = drain(t, events, time.Second)
	require.Equal(t, stall.EventAutoNudge, ev.Kind)
	require.Equal(t, 2, ev.NudgeCount)

	ev = drain(t, events, time.Second)
	require.Equal(t, stall.EventEscalated, ev.Kind)
	require.Equal(t, 3, ev.NudgeCount)
}

func TestResetFromStalledEmitsSelfRecovered(t *testing.T) {
	events := make(chan stall.Event, 16)
	d := stall.New("session:1", 20*time.Millisecond, 50*time.Millisecond, 3, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ev := drain(t, events, time.Second)
	require.Equal(t, stall.EventStalled, ev.Kind)

	d.Reset()

	ev = drain(t, events, time.Second)
	require.Equal(t, stall.EventSelfRecovered, ev.Kind)
	require.False(t, d.IsStalled())
}

func TestResetWhileIdleEmitsNothing(t *testing.T) {
	events := make(chan stall.Event, 16)
	d := stall.New("session:1", time.Hour, time.Hour, 3, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Reset()

	select {
	case ev := <-events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPauseSuspendsEventsUntilResume(t *testing.T) {
	events := make(chan stall.Event, 16)
	d := stall.New("session:1", 20*time.Millisecond, 20*time.Millisecond, 3, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Pause()

	select {
	case ev := <-events:
		t.Fatalf("expected no event while paused, got %+v", ev)
	case <-time.After(60 * time.Millisecond):
	}

	d.Resume()

	ev := drain(t, events, time.Second)
	require.Equal(t, stall.EventStalled, ev.Kind)
}

func TestExternalCancellationStopsTheLoop(t *testing.T) {
	events := make(chan stall.Event, 16)
	d := stall.New("session:1", 10*time.Millisecond, 10*time.Millisecond, 1, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after cancellation")
	}
}

func TestSupervisorStartResetIsStalled(t *testing.T) {
	sup := stall.NewSupervisor(20*time.Millisecond, 20*time.Millisecond, 2, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx, "session:1")

	ev := drain(t, sup.Events(), time.Second)
	require.Equal(t, stall.EventStalled, ev.Kind)
	require.True(t, sup.IsStalled("session:1"))

	require.NoError(t, sup.Reset("session:1"))
	ev = drain(t, sup.Events(), time.Second)
	require.Equal(t, stall.EventSelfRecovered, ev.Kind)
	require.False(t, sup.IsStalled("session:1"))
}

func TestSupervisorOperationsOnUnknownSessionReturnNotFound(t *testing.T) {
	sup := stall.NewSupervisor(time.Second, time.Second, 3, 16)

	require.Error(t, sup.Reset("session:missing"))
	require.Error(t, sup.Pause("session:missing"))
	require.Error(t, sup.Resume("session:missing"))
	require.False(t, sup.IsStalled("session:missing"))
}
