package rendezvous_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/errs"
	"overseer/internal/rendezvous"
)

func TestRegisterResolveDelivers(t *testing.T) {
	tbl := rendezvous.NewTable()
	ch := tbl.Register("req:1")

	require.NoError(t, tbl.Resolve("req:1", "approved"))

	select {
	case d := <-ch:
		require.Equal(t, "approved", d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decision")
	}
}

func TestResolveUnknownIDReturnsNotFound(t *testing.T) {
	tbl := rendezvous.NewTable()

	err := tbl.Resolve("req:missing", "approved")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestDoubleResolveReturnsNotFoundOnSecondCall(t *testing.T) {
	tbl := rendezvous.NewTable()
	tbl.Register("req:1")

	require.NoError(t, tbl.Resolve("req:1", "approved"))
	err := tbl.Resolve("req:1", "approved-again")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestForgetClosesChannelWithoutDelivering(t *testing.T) {
	tbl := rendezvous.NewTable()
	ch := tbl.Register("req:1")

	tbl.Forget("req:1")

	d, ok := <-ch
	require.False(t, ok)
	require.Nil(t, d)
}

func TestRegisterAndReceiveHonorsResolve(t *testing.T) {
	tbl := rendezvous.NewTable()
	ctx := context.Background()

	go func() {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, tbl.Resolve("req:1", "approved"))
	}()

	decision, err := tbl.RegisterAndReceive(ctx, "req:1")
	require.NoError(t, err)
	require.Equal(t, "approved", decision)
}

func TestRegisterAndReceiveTimesOutOnContextDeadline(t *testing.T) {
	tbl := rendezvous.NewTable()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tbl.RegisterAndReceive(ctx, "req:1")
	require.Error(t, err)

	// The entry must be cleaned up even on timeout, so a later resolve is a
	// no-op rather than delivering into a channel nobody is reading.
	resolveErr := tbl.Resolve("req:1", "late")
	require.Error(t, resolveErr)
	require.Equal(t, errs.NotFound, errs.KindOf(resolveErr))
}

func TestRegisterReplacesStaleOutstandingEntry(t *testing.T) {
	tbl := rendezvous.NewTable()
	stale := tbl.Register("req:1")
	fresh := tbl.Register("req:1")

	require.NoError(t, tbl.Resolve("req:1", "approved"))

	_, ok := <-stale
	require.False(t, ok, "stale channel should have been closed when replaced")

	select {
	case d := <-fresh:
		require.Equal(t, "approved", d)
	case <-time.After(time.Second):
		t.Fatal("fresh channel never received the decision")
	}
}

func TestManagerKeepsKindsIndependent(t *testing.T) {
	mgr := rendezvous.NewManager()

	approvalCh := mgr.Register(rendezvous.Approval, "req:1")
	promptCh := mgr.Register(rendezvous.Prompt, "req:1")

	require.NoError(t, mgr.Resolve(rendezvous.Approval, "req:1", "approved"))

	select {
	case d := <-approvalCh:
		require.Equal(t, "approved", d)
	case <-time.After(time.Second):
		t.Fatal("approval table never delivered")
	}

	select {
	case <-promptCh:
		t.Fatal("prompt table should not have been resolved by an approval resolve of the same id")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestInterruptSessionResolvesAllOutstandingIDs(t *testing.T) {
	mgr := rendezvous.NewManager()
	approvalCh := mgr.Register(rendezvous.Approval, "req:a")
	promptCh := mgr.Register(rendezvous.Prompt, "req:p")
	waitCh := mgr.Register(rendezvous.Wait, "req:w")

	mgr.InterruptSession([]string{"req:a"}, []string{"req:p"}, []string{"req:w"}, "interrupted")

	for _, ch := range []<-chan rendezvous.Decision{approvalCh, promptCh, waitCh} {
		select {
		case d := <-ch:
			require.Equal(t, "interrupted", d)
		case <-time.After(time.Second):
			t.Fatal("entry was not resolved by InterruptSession")
		}
	}
}
