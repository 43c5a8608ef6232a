// Package shutdown implements C14 (Retry/Shutdown, spec.md §4.14): the root
// cancellation token cmd/overseerd wires every long-running component
// through, SIGINT/SIGTERM handling, and an unconditional drain of
// registered cleanup hooks on the way out — spec.md §4.14 requires every
// hook to run whether or not the process is mid-request, and requires
// repeated signals or repeated Cancel calls to be safe to ignore.
//
// Grounded on the teacher's cmd/maestro bootstrap-flow signal handling
// (os/signal.Notify on SIGINT/SIGTERM racing a cancellable context against
// a bounded shutdown timeout) and internal/supervisor.ShutdownHandler
// (an interface wrapping "do cleanup, then stop" so tests can substitute a
// channel-based handler for os.Exit). Generalized from a single bootstrap
// run's one-shot cleanup to a registry of named hooks run in registration
// order, since cmd/overseerd owns several independent components (store,
// transports, retention worker) that must each get a chance to drain.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"overseer/pkg/logx"
)

// Hook is a cleanup function run during shutdown. It receives a bounded
// context (see Coordinator.Drain) and should return promptly once that
// context is done even if its work is incomplete.
type Hook func(ctx context.Context) error

// Coordinator owns the process-wide cancellation token and the ordered
// list of cleanup hooks to run when it fires.
type Coordinator struct {
	mu       sync.Mutex
	hooks    []namedHook
	cancel   context.CancelFunc
	ctx      context.Context
	fired    bool
	drained  bool
	Log      *logx.Logger
}

type namedHook struct {
	name string
	fn   Hook
}

// New builds a Coordinator whose Context is cancelled when Cancel is
// called or when SIGINT/SIGTERM is received (if Listen is used). log may
// be nil, in which case a default logger is created.
func New(log *logx.Logger) *Coordinator {
	if log == nil {
		log = logx.NewLogger("shutdown")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{ctx: ctx, cancel: cancel, Log: log}
}

// Context returns the root cancellation token. Every long-running
// component (transports, retention worker, stall supervisor) should be
// started with this context, or a child derived from it.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Register adds a named cleanup hook, run in registration order by Drain.
// Safe to call concurrently with Cancel, but hooks registered after Drain
// has started will not run.
func (c *Coordinator) Register(name string, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, namedHook{name: name, fn: fn})
}

// Cancel fires the root context. Idempotent: repeated calls (e.g. a second
// SIGTERM arriving mid-drain) are no-ops after the first.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	already := c.fired
	c.fired = true
	c.mu.Unlock()
	if already {
		return
	}
	c.cancel()
}

// Listen installs a signal handler that calls Cancel on the first
// SIGINT/SIGTERM and logs (without acting on) any further signal received
// while a drain is already underway. It returns a function that stops
// listening; callers should defer it.
func (c *Coordinator) Listen() func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				c.mu.Lock()
				alreadyFiring := c.fired
				c.mu.Unlock()
				if alreadyFiring {
					c.Log.Warn("shutdown: received %s during drain, ignoring", sig)
					continue
				}
				c.Log.Info("shutdown: received %s, cancelling", sig)
				c.Cancel()
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

// Drain runs every registered hook, in registration order, each bounded by
// timeout, regardless of whether it has already partially run or whether
// Context() was ever cancelled — spec.md §4.14's "unconditional drain".
// Idempotent: a second call is a no-op and returns nil immediately.
func (c *Coordinator) Drain(timeout time.Duration) error {
	c.mu.Lock()
	if c.drained {
		c.mu.Unlock()
		return nil
	}
	c.drained = true
	hooks := make([]namedHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	var firstErr error
	for _, h := range hooks {
		hookCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := h.fn(hookCtx); err != nil {
			c.Log.Error("shutdown: hook %q failed: %v", h.name, err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			c.Log.Debug("shutdown: hook %q drained", h.name)
		}
		cancel()
	}
	return firstErr
}
