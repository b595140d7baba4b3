package drop

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = time.Hour

// SessionSweeper periodically deletes expired sessions.
type SessionSweeper struct {
	service  *DropService
	interval time.Duration
	logger   Logger
}

// NewSessionSweeper creates a sweeper. A non-positive interval uses the default.
func NewSessionSweeper(service *DropService, interval time.Duration, logger Logger) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &SessionSweeper{service: service, interval: interval, logger: logger}
}

// SweepOnce runs a single pass and logs the outcome.
func (w *SessionSweeper) SweepOnce(ctx context.Context) {
	n, err := w.service.SweepSessions(ctx)
	if err != nil {
		w.logger.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("expired sessions removed", "count", n)
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}
