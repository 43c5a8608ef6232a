package shutdown_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/shutdown"
)

func TestCancelIsIdempotent(t *testing.T) {
	c := shutdown.New(nil)
	c.Cancel()
	c.Cancel() // must not panic or block

	select {
	case <-c.Context().Done():
	default:
		t.Fatal("context should be cancelled")
	}
}

func TestDrainRunsHooksInOrderOnce(t *testing.T) {
	c := shutdown.New(nil)
	var order []int
	var calls int32
	for i := 0; i < 3; i++ {
		i := i
		c.Register("hook", func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, c.Drain(time.Second))
	require.Equal(t, []int{0, 1, 2}, order)

	require.NoError(t, c.Drain(time.Second)) // second call is a no-op
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDrainRunsEveryHookEvenIfOneFails(t *testing.T) {
	c := shutdown.New(nil)
	ran := make([]bool, 2)
	c.Register("failing", func(ctx context.Context) error {
		ran[0] = true
		return context.DeadlineExceeded
	})
	c.Register("later", func(ctx context.Context) error {
		ran[1] = true
		return nil
	})

	err := c.Drain(time.Second)
	require.Error(t, err)
	require.True(t, ran[0])
	require.True(t, ran[1])
}
