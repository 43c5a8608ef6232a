package ipc_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overseer/internal/config"
	"overseer/internal/intercept"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/internal/store/memory"
	"overseer/internal/transport/ipc"
)

type testServer struct {
	srv    *ipc.Server
	sock   string
	cancel context.CancelFunc
	store  store.Store
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	st := memory.New()
	rv := rendezvous.NewManager()
	mgr := session.New(st, rv, 4)
	pc, err := policy.NewCache(nil)
	require.NoError(t, err)
	qm := queue.New(st)
	h := intercept.New(st, mgr, rv, pc, qm, nil, nil, nil, config.Timeouts{ApprovalSeconds: 1, PromptSeconds: 1, WaitSeconds: 1}, nil)

	sock := filepath.Join(t.TempDir(), "overseer.sock")
	srv := ipc.New(sock, "user:1", mgr, h, qm, st, nil)

	go func() { _ = srv.ListenAndServe(ctx) }()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() { cancel(); _ = srv.Close() })
	return &testServer{srv: srv, sock: sock, cancel: cancel, store: st}
}

func roundTrip(t *testing.T, sock, cmd string) map[string]interface{} {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestListReturnsEmptyWhenNoSessions(t *testing.T) {
	ts := startServer(t)
	resp := roundTrip(t, ts.sock, "list")
	require.Equal(t, true, resp["ok"])
}

func TestUnknownCommandFails(t *testing.T) {
	ts := startServer(t)
	resp := roundTrip(t, ts.sock, "bogus")
	require.Equal(t, false, resp["ok"])
	require.Contains(t, resp["error"], "unknown command")
}

func TestApproveResolvesPendingApproval(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	sess := &store.Session{
		ID: "session:test", OwnerUserID: "user:1", WorkspaceRoot: t.TempDir(),
		Mode: store.ModeRemote, ProtocolMode: store.ProtocolPull, Status: store.SessionActive,
	}
	require.NoError(t, ts.store.Sessions().Create(ctx, sess))

	req := &store.ApprovalRequest{
		ID: "req:test", SessionID: sess.ID, Title: "t", Status: store.ApprovalPending,
	}
	require.NoError(t, ts.store.Approvals().Create(ctx, req))

	resp := roundTrip(t, ts.sock, "approve "+req.ID)
	require.Equal(t, true, resp["ok"])
}

func TestResumeWithNoActiveSessionFails(t *testing.T) {
	ts := startServer(t)
	resp := roundTrip(t, ts.sock, "resume go ahead")
	require.Equal(t, false, resp["ok"])
}
