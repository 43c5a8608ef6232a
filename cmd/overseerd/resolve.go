package main

import (
	"net/http"

	"overseer/internal/errs"
	"overseer/internal/intercept"
	"overseer/internal/transport/rpc"
)

// httpResolver implements transporthttp.SessionResolver: the streamable
// HTTP transport names its session and acting user via query parameters on
// every request, since (unlike stdio, which owns one connection for its
// whole lifetime) each HTTP POST is independent (spec.md §4.12).
type httpResolver struct {
	handlers *intercept.Handlers
}

func (r *httpResolver) Resolve(req *http.Request) (*rpc.Dispatcher, error) {
	sessionID := req.URL.Query().Get("session_id")
	userID := req.URL.Query().Get("user_id")
	if sessionID == "" || userID == "" {
		return nil, errs.New(errs.Protocol, "http.resolve", "session_id and user_id query parameters are required")
	}
	return rpc.NewDispatcher(r.handlers, sessionID, userID), nil
}
