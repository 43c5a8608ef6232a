// Package http implements the Pull driver's streamable HTTP ingress (C12
// item 2, spec.md §4.12): one endpoint accepting a JSON-RPC POST per
// connection-independent session context, a `/health` liveness probe, and
// a `/metrics` Prometheus scrape endpoint (SPEC_FULL.md §5.1's supplemented
// observability surface).
//
// Grounded on the teacher's gateway-style http.ServeMux wiring seen across
// the pack (vanducng-goclaw's internal/gateway.Server.BuildMux / handleHealth)
// generalized from a WebSocket+REST gateway to the narrower JSON-RPC POST +
// health + metrics surface this transport needs, using net/http.Server's
// own graceful Shutdown for C14 rather than a bespoke listener loop.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"overseer/internal/metrics"
	"overseer/internal/transport/rpc"
	"overseer/pkg/logx"
)

// SessionResolver maps an incoming request to a *rpc.Dispatcher scoped to
// a session and its acting user (cmd/overseerd's resolver reads the
// session_id and user_id query parameters). The HTTP transport has no
// session of its own — each request names one — so this
// indirection is how cmd/overseerd wires the transport to C7/C10 without
// this package importing internal/session directly.
type SessionResolver interface {
	Resolve(r *http.Request) (*rpc.Dispatcher, error)
}

// Server is the streamable-HTTP transport.
type Server struct {
	Resolver SessionResolver
	Metrics  *metrics.Recorder
	Log      *logx.Logger

	httpServer *http.Server
}

// New builds a Server. metricsRecorder and log may be nil; log defaults to
// a new logger, and a nil recorder simply omits the /metrics route.
func New(resolver SessionResolver, metricsRecorder *metrics.Recorder, log *logx.Logger) *Server {
	if log == nil {
		log = logx.NewLogger("transport-http")
	}
	return &Server{Resolver: resolver, Metrics: metricsRecorder, Log: log}
}

// Mux builds the http.ServeMux this server serves.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/health", s.handleHealth)
	if s.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Gatherer(), promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts serving on addr and blocks until ctx is cancelled,
// at which point it drains in-flight requests via http.Server.Shutdown
// (spec.md §4.14's unconditional drain applies here too: Shutdown always
// runs, whether or not any request is in flight).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Mux()}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleRPC accepts one JSON-RPC POST body, resolves the request's session
// context (spec.md §4.12's "per-request query string may override the chat
// channel"), and dispatches into the shared intercept.Handlers via
// internal/transport/rpc.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dispatcher, err := s.Resolver.Resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	resp := dispatcher.Handle(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Log.Error("encode rpc response: %v", err)
	}
}
