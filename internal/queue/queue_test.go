package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"overseer/internal/errs"
	"overseer/internal/queue"
	"overseer/internal/store"
	"overseer/internal/store/memory"
)

func TestSteerAndDrainInFIFOOrder(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st)

	_, err := q.Steer(ctx, "session:1", nil, "first", store.SourceSlack)
	require.NoError(t, err)
	_, err = q.Steer(ctx, "session:1", nil, "second", store.SourceIPC)
	require.NoError(t, err)

	drained, err := q.DrainSteering(ctx, "session:1")
	require.NoError(t, err)
	require.Len(t, drained, 2)
	require.Equal(t, "first", drained[0].Message)
	require.Equal(t, "second", drained[1].Message)

	again, err := q.DrainSteering(ctx, "session:1")
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestSteerRejectsEmptyMessage(t *testing.T) {
	st := memory.New()
	q := queue.New(st)

	_, err := q.Steer(context.Background(), "session:1", nil, "", store.SourceSlack)
	require.Error(t, err)
	require.Equal(t, errs.Protocol, errs.KindOf(err))
}

func TestTaskGlobalVisibleToEveryChannel(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st)

	_, err := q.Task(ctx, nil, "global task", store.SourceIPC)
	require.NoError(t, err)
	channelID := "C123"
	_, err = q.Task(ctx, &channelID, "scoped task", store.SourceIPC)
	require.NoError(t, err)

	other := "COTHER"
	items, err := q.PeekInbox(ctx, other)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "global task", items[0].Message)

	items, err = q.DrainInbox(ctx, "C123")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestPeekInboxDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st)

	_, err := q.Task(ctx, nil, "global task", store.SourceIPC)
	require.NoError(t, err)

	first, err := q.PeekInbox(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := q.PeekInbox(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, second, 1)
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendPrompt(sessionID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestConnectDrainSendsEachSteeringMessageAsPrompt(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st)

	_, err := q.Steer(ctx, "session:1", nil, "do the thing", store.SourceSlack)
	require.NoError(t, err)

	sender := &fakeSender{}
	n, err := q.ConnectDrain(ctx, "session:1", sender)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"do the thing"}, sender.sent)

	drained, err := q.DrainSteering(ctx, "session:1")
	require.NoError(t, err)
	require.Empty(t, drained)
}

func TestConnectDrainWithNoMessagesIsNoop(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st)

	sender := &fakeSender{}
	n, err := q.ConnectDrain(ctx, "session:1", sender)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, sender.sent)
}
