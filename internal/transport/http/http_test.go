package http_test

import (
	"bytes"
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"overseer/internal/config"
	"overseer/internal/intercept"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/session"
	"overseer/internal/store"
	"overseer/internal/store/memory"
	transporthttp "overseer/internal/transport/http"
	"overseer/internal/transport/rpc"
)

type staticResolver struct {
	dispatcher *rpc.Dispatcher
	err        error
}

func (r *staticResolver) Resolve(*stdhttp.Request) (*rpc.Dispatcher, error) {
	return r.dispatcher, r.err
}

func buildDispatcher(t *testing.T) (*rpc.Dispatcher, *store.Session) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	rv := rendezvous.NewManager()
	mgr := session.New(st, rv, 4)
	s, err := mgr.Create(ctx, "user:1", t.TempDir(), store.ModeRemote, store.ProtocolPull, nil, nil)
	require.NoError(t, err)
	_, err = mgr.Activate(ctx, s.ID, "user:1")
	require.NoError(t, err)

	pc, err := policy.NewCache(nil)
	require.NoError(t, err)
	qm := queue.New(st)
	h := intercept.New(st, mgr, rv, pc, qm, nil, nil, nil, config.Timeouts{ApprovalSeconds: 1}, nil)
	return rpc.NewDispatcher(h, s.ID, "user:1"), s
}

func TestHandleHealth(t *testing.T) {
	srv := transporthttp.New(&staticResolver{}, nil, nil)
	req := httptest.NewRequest(stdhttp.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.Equal(t, "ok", string(body))
}

func TestHandleRPCDispatchesToolsList(t *testing.T) {
	dispatcher, _ := buildDispatcher(t)
	srv := transporthttp.New(&staticResolver{dispatcher: dispatcher}, nil, nil)

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(stdhttp.MethodPost, "/rpc", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "request_approval")
}

func TestHandleRPCRejectsNonPost(t *testing.T) {
	srv := transporthttp.New(&staticResolver{}, nil, nil)
	req := httptest.NewRequest(stdhttp.MethodGet, "/rpc", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	require.Equal(t, stdhttp.StatusMethodNotAllowed, rec.Code)
}
