// overseerd is the remote-operator supervisor daemon (spec.md §1): it wires
// the store, session manager, rendezvous table, policy cache, queue
// manager, stall detector, retention worker, and every transport (C12) into
// one running process, then blocks until SIGINT/SIGTERM.
//
// Two run modes, selected by -stdio:
//   - daemon (default): serves the local IPC transport and the streamable
//     HTTP transport, and — if the config's host_cli is set — spawns one
//     push-model agent child and streams its events through agentstream.
//   - stdio: serves exactly one pull-model session over stdin/stdout, for
//     an agent that invokes overseerd as its own subprocess (spec.md
//     §4.12.1), and exits when that connection closes.
//
// Grounded on the teacher's cmd/maestro-mcp-server/main.go: flag parsing,
// a single logger created before anything else, a context cancelled by
// os/signal.Notify, dependencies built top-down, and a blocking wait on
// that context at the end of main.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"overseer/internal/agentdriver/push"
	"overseer/internal/childmonitor"
	"overseer/internal/collab"
	"overseer/internal/collabadapt"
	"overseer/internal/config"
	"overseer/internal/intercept"
	"overseer/internal/metrics"
	"overseer/internal/policy"
	"overseer/internal/queue"
	"overseer/internal/rendezvous"
	"overseer/internal/retention"
	"overseer/internal/session"
	"overseer/internal/shutdown"
	"overseer/internal/stall"
	"overseer/internal/store"
	"overseer/internal/store/memory"
	"overseer/internal/store/sqlite"
	"overseer/internal/transport/agentstream"
	transporthttp "overseer/internal/transport/http"
	"overseer/internal/transport/ipc"
	"overseer/internal/transport/rpc"
	"overseer/internal/transport/stdio"
	"overseer/pkg/chat"
	"overseer/pkg/eventlog"
	"overseer/pkg/logx"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default config if empty)")
	stdioMode := flag.Bool("stdio", false, "serve a single pull-model session over stdin/stdout")
	stdioOwner := flag.String("owner", "operator", "owning user id for the -stdio session")
	initialPrompt := flag.String("prompt", "", "initial prompt for a spawned push-model session (requires host_cli)")
	flag.Parse()

	log := logx.NewLogger("overseerd")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "overseerd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	sc := shutdown.New(log)
	stopSignals := sc.Listen()
	defer stopSignals()
	ctx := sc.Context()

	st, err := openStore(cfg)
	if err != nil {
		log.Error("open store: %v", err)
		os.Exit(1)
	}
	sc.Register("store", func(context.Context) error { return st.Close() })

	rv := rendezvous.NewManager()
	sessions := session.New(st, rv, cfg.MaxConcurrentSessions)

	if err := session.RecoverOnStartup(ctx, st, rv); err != nil {
		log.Error("crash recovery: %v", err)
	}

	pc, err := policy.NewCache(cfg.CommandAllowlist)
	if err != nil {
		log.Error("policy cache: %v", err)
		os.Exit(1)
	}
	sc.Register("policy-cache", func(context.Context) error { return pc.Close() })

	qm := queue.New(st)
	rec := metrics.NewRecorder()

	var sup *stall.Supervisor
	if cfg.Stall.Enabled {
		sup = stall.NewSupervisor(cfg.Stall.InactivityThreshold(), cfg.Stall.EscalationThreshold(), cfg.Stall.MaxRetries, 256)
		go consumeStallEvents(ctx, sup, st, chatPoster(cfg, log), rec, log)
	}

	chatCollab := chatPoster(cfg, log)
	auditCollab := auditLogger(cfg, log)

	h := intercept.New(st, sessions, rv, pc, qm, chatCollab, auditCollab, sup, cfg.Timeouts, logx.NewLogger("intercept"))

	if *stdioMode {
		runStdio(ctx, sessions, h, *stdioOwner, cfg, log)
		_ = sc.Drain(5 * time.Second)
		return
	}

	runDaemon(ctx, sc, cfg, st, sessions, h, qm, rec, *initialPrompt, log)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DBPath == "" {
		return memory.New(), nil
	}
	return sqlite.Open(cfg.DBPath)
}

func chatPoster(cfg *config.Config, log *logx.Logger) collab.ChatPoster {
	if cfg.Chat.ChannelID == "" && len(cfg.Chat.Routing) == 0 {
		return collab.NoopChatPoster{}
	}
	return collabadapt.ChatStub{Stub: chat.NewStub(log.WithAgentID("chat"))}
}

func auditLogger(cfg *config.Config, log *logx.Logger) collab.AuditLogger {
	if cfg.AuditLogDir == "" {
		return collab.NoopAuditLogger{}
	}
	w, err := eventlog.NewWriter(cfg.AuditLogDir)
	if err != nil {
		log.Error("audit log: %v, falling back to no-op", err)
		return collab.NoopAuditLogger{}
	}
	return collabadapt.EventLogWriter{Writer: w}
}

// consumeStallEvents drains the shared stall event channel for the
// lifetime of the process, recording metrics and escalating Escalated
// events to the session's chat channel (SPEC_FULL.md §5.1's metrics
// surface, spec.md §4.8's event list).
func consumeStallEvents(ctx context.Context, sup *stall.Supervisor, st store.Store, chatCollab collab.ChatPoster, rec *metrics.Recorder, log *logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sup.Events():
			if !ok {
				return
			}
			rec.ObserveStallEvent(string(ev.Kind))
			log.Info("stall: session=%s kind=%s idle=%ds nudge=%d", ev.SessionID, ev.Kind, ev.IdleSeconds, ev.NudgeCount)
			if ev.Kind != stall.EventEscalated {
				continue
			}
			s, err := st.Sessions().Get(ctx, ev.SessionID)
			if err != nil || s.ChannelID == nil {
				continue
			}
			msg := fmt.Sprintf("session %s stalled and exhausted automatic nudges; operator action required", ev.SessionID)
			if err := chatCollab.PostMessage(ctx, *s.ChannelID, msg); err != nil {
				log.Error("stall escalation post failed: %v", err)
			}
		}
	}
}

// runStdio serves exactly one pull-model session over stdin/stdout until
// the stream closes or ctx is cancelled (spec.md §4.12.1).
func runStdio(ctx context.Context, sessions *session.Manager, h *intercept.Handlers, owner string, cfg *config.Config, log *logx.Logger) {
	s, err := sessions.Create(ctx, owner, cfg.DefaultWorkspaceRoot, store.ModeRemote, store.ProtocolPull, nil, nil)
	if err != nil {
		log.Error("create stdio session: %v", err)
		return
	}
	if _, err := sessions.Activate(ctx, s.ID, owner); err != nil {
		log.Error("activate stdio session: %v", err)
		return
	}

	d := rpc.NewDispatcher(h, s.ID, owner)
	srv := stdio.New(d, os.Stdin, os.Stdout, logx.NewLogger("transport-stdio"))
	if err := srv.Serve(ctx); err != nil {
		log.Error("stdio serve: %v", err)
	}
}

// runDaemon serves the local IPC and streamable-HTTP transports, optionally
// spawning one push-model agent child, and blocks until ctx is cancelled.
func runDaemon(ctx context.Context, sc *shutdown.Coordinator, cfg *config.Config, st store.Store, sessions *session.Manager, h *intercept.Handlers, qm *queue.Manager, rec *metrics.Recorder, initialPrompt string, log *logx.Logger) {
	operatorID := "operator"
	if len(cfg.AuthorizedUserIDs) > 0 {
		operatorID = cfg.AuthorizedUserIDs[0]
	}

	ipcSrv := ipc.New(cfg.IPCSocketPath, operatorID, sessions, h, qm, st, logx.NewLogger("transport-ipc"))
	go func() {
		if err := ipcSrv.ListenAndServe(ctx); err != nil {
			log.Error("ipc transport: %v", err)
		}
	}()
	sc.Register("ipc-transport", func(context.Context) error { return ipcSrv.Close() })

	watchSrv := ipc.NewWatch(cfg.IPCSocketPath+".watch", operatorID, st, logx.NewLogger("transport-ipc-watch"))
	go func() {
		if err := watchSrv.ListenAndServe(ctx); err != nil {
			log.Error("ipc watch transport: %v", err)
		}
	}()
	sc.Register("ipc-watch-transport", func(context.Context) error { return watchSrv.Close() })

	httpSrv := transporthttp.New(&httpResolver{handlers: h}, rec, logx.NewLogger("transport-http"))
	go func() {
		if err := httpSrv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
			log.Error("http transport: %v", err)
		}
	}()

	retentionWorker := retention.New(st, cfg.RetentionDays, time.Hour)
	go retentionWorker.Run(ctx)

	if cfg.HostCLI != "" {
		spawnPushSession(ctx, cfg, operatorID, initialPrompt, sessions, h, qm, log)
	}

	<-ctx.Done()
	_ = sc.Drain(10 * time.Second)
}

// spawnPushSession starts one push-model agent child under the session
// manager, wiring its event stream through agentstream (spec.md §4.6's
// push-model startup handshake, driven by internal/agentdriver/push).
func spawnPushSession(ctx context.Context, cfg *config.Config, owner, initialPrompt string, sessions *session.Manager, h *intercept.Handlers, qm *queue.Manager, log *logx.Logger) {
	if initialPrompt == "" {
		log.Error("host_cli is set but -prompt was empty; refusing to spawn (spec.md §4.6: empty prompts are rejected before spawn)")
		return
	}

	s, err := sessions.Create(ctx, owner, cfg.DefaultWorkspaceRoot, store.ModeRemote, store.ProtocolPush, &initialPrompt, nil)
	if err != nil {
		log.Error("create push session: %v", err)
		return
	}
	if _, err := sessions.Activate(ctx, s.ID, owner); err != nil {
		log.Error("activate push session: %v", err)
		return
	}
	scopeCtx, ok := sessions.ScopeContext(s.ID)
	if !ok {
		log.Error("push session %s has no scope", s.ID)
		return
	}

	driver, err := push.Spawn(scopeCtx, push.Config{
		Command:       cfg.HostCLI,
		Args:          cfg.HostCLIArgs,
		WorkspaceRoot: cfg.DefaultWorkspaceRoot,
		ReadyTimeout:  30 * time.Second,
		InitTimeout:   30 * time.Second,
		InitialPrompt: initialPrompt,
		SessionID:     s.ID,
		UsePTY:        cfg.HostCLIPty,
	})
	if err != nil {
		log.Error("spawn push driver: %v", err)
		if _, termErr := sessions.Terminate(ctx, s.ID, owner, nil); termErr != nil {
			log.Error("terminate failed push session: %v", termErr)
		}
		return
	}

	mon := childmonitor.New(sessions, logx.NewLogger("childmonitor"))
	agentSession := agentstream.New(s.ID, owner, driver, h, qm, h.Audit, mon, logx.NewLogger("agentstream"))

	go func() {
		if err := agentSession.Run(scopeCtx); err != nil {
			log.Error("agent stream for session %s: %v", s.ID, err)
		}
	}()
}

