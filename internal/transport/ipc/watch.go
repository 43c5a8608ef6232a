package ipc

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"overseer/internal/store"
	"overseer/pkg/logx"
)

// pollInterval is how often WatchServer pushes a fresh session snapshot to
// each connected watcher.
const pollInterval = 2 * time.Second

// WatchServer is the companion CLI's "watch mode" upgrade (SPEC_FULL.md
// §5.1): a websocket-framed live feed of the operator's active sessions,
// served on its own unix-domain socket alongside the line-oriented ipc.Server
// so a plain net.Dial client and a websocket client never have to share one
// handshake. Grounded on vanducng-goclaw's internal/gateway.Server, whose
// websocket.Upgrader + http.ServeMux pattern is reused here verbatim, with
// the origin check dropped since this socket is filesystem-permissioned
// rather than browser-facing.
type WatchServer struct {
	SocketPath string
	OperatorID string
	Store      store.Store
	Log        *logx.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewWatch builds a WatchServer. log may be nil.
func NewWatch(socketPath, operatorID string, st store.Store, log *logx.Logger) *WatchServer {
	if log == nil {
		log = logx.NewLogger("transport-ipc-watch")
	}
	return &WatchServer{
		SocketPath: socketPath,
		OperatorID: operatorID,
		Store:      st,
		Log:        log,
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ListenAndServe removes any stale socket file and serves /watch until ctx
// is cancelled.
func (w *WatchServer) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(w.SocketPath)

	l, err := net.Listen("unix", w.SocketPath)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", w.handleWatch)
	w.httpServer = &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- w.httpServer.Serve(l) }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.httpServer.Shutdown(shutdownCtx)
	}
}

// Close stops the watch listener.
func (w *WatchServer) Close() error {
	if w.httpServer == nil {
		return nil
	}
	return w.httpServer.Close()
}

// handleWatch upgrades the request and pushes a session snapshot every
// pollInterval until the client disconnects or the write fails.
func (w *WatchServer) handleWatch(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.Log.Error("watch: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		sessions, err := w.Store.Sessions().ListActive(r.Context())
		if err != nil {
			w.Log.Error("watch: list active sessions: %v", err)
			return
		}
		var owned []*store.Session
		for _, s := range sessions {
			if s.OwnerUserID == w.OperatorID {
				owned = append(owned, s)
			}
		}
		if err := conn.WriteJSON(owned); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}
