// Package retention implements the Retention Worker (C11): a background
// tick that purges Terminated sessions older than retention_days, cascading
// through their approvals, prompts, stall alerts, and checkpoints.
//
// Grounded on the teacher's internal/supervisor.Supervisor.pollAPIHealth: a
// time.Ticker driving a select loop against ctx.Done(), generalized from
// "poll API health, broadcast restore" to "poll for expired sessions,
// delete them".
package retention

import (
	"context"
	"time"

	"overseer/internal/store"
	"overseer/pkg/logx"
)

// Worker periodically purges old terminated sessions.
type Worker struct {
	store         store.Store
	retentionDays int
	tickInterval  time.Duration
	log           *logx.Logger
}

// New constructs a Worker. retentionDays mirrors config.Config.RetentionDays;
// tickInterval is how often PurgeOnce runs inside Run (spec.md §4.11 calls
// for "an internal tick" without pinning its period).
func New(st store.Store, retentionDays int, tickInterval time.Duration) *Worker {
	return &Worker{
		store:         st,
		retentionDays: retentionDays,
		tickInterval:  tickInterval,
		log:           logx.NewLogger("retention"),
	}
}

// Run drives PurgeOnce on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.PurgeOnce(ctx); err != nil {
				w.log.Error("purge failed: %v", err)
			} else if n > 0 {
				w.log.Info("purged %d terminated session(s)", n)
			}
		}
	}
}

// PurgeOnce deletes every Terminated session whose terminated_at predates
// now - retention_days. SessionRepo.Delete cascades through approvals,
// prompts, stall alerts, and checkpoints (spec.md §3's cascading-ownership
// rule), so this package does not touch those repositories directly.
// Active, Paused, and recently-terminated sessions are untouched.
func (w *Worker) PurgeOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -w.retentionDays)
	expired, err := w.store.Sessions().ListTerminatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, s := range expired {
		if err := w.store.Sessions().Delete(ctx, s.ID); err != nil {
			w.log.Warn("failed to purge session %s: %v", s.ID, err)
			continue
		}
		purged++
	}
	return purged, nil
}
