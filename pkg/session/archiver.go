package session

import (
	"context"
	"time"

	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/observability/metrics"
)

// Archiver marks sessions idle past the inactivity timeout as archived.
// Archived sessions stop accepting turns but are never deleted here.
type Archiver struct {
	store    Store
	timeout  time.Duration
	interval time.Duration
}

func NewArchiver(store Store, inactivityTimeout, sweepInterval time.Duration) *Archiver {
	return &Archiver{store: store, timeout: inactivityTimeout, interval: sweepInterval}
}

// Run sweeps until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep archives every session idle since before now-timeout.
func (a *Archiver) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-a.timeout)
	ids, err := a.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		logging.Errorf("Archiver sweep failed to list idle sessions: %v", err)
		return
	}
	for _, id := range ids {
		if err := a.store.ArchiveSession(ctx, id); err != nil {
			logging.Errorf("Failed to archive session %s: %v", id, err)
			continue
		}
		metrics.SessionsArchived.Inc()
		logging.LogEvent("session_archived", map[string]interface{}{
			"session_id": id,
		})
	}
}
