// Package workers contains the scheduled background jobs.
package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/opendev/membership-app/backend/internal/core/ports"
)

// OrphanScanner runs the orphan scan on a fixed schedule with a single-flight
// guard: a tick that fires while the previous run is still going is skipped
// entirely, never queued or parallelized.
type OrphanScanner struct {
	logger *slog.Logger
	scans  ports.OrphanScanService

	interval time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
}

func NewOrphanScanner(logger *slog.Logger, scans ports.OrphanScanService, interval time.Duration) *OrphanScanner {
	return &OrphanScanner{
		logger:   logger,
		scans:    scans,
		interval: interval,
	}
}

// Start begins the periodic scan loop and blocks until the context is
// cancelled or Stop is called.
func (w *OrphanScanner) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Info("Starting orphan scanner worker", "interval", w.interval.String())

	// Run an initial scan immediately
	w.RunNow(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Orphan scanner worker stopped")
			return
		case <-ticker.C:
			w.RunNow(ctx)
		}
	}
}

// Stop terminates the scan loop. A run already in flight finishes on its own.
func (w *OrphanScanner) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// RunNow executes one scan unless another is already in progress. Returns
// whether a scan actually ran.
func (w *OrphanScanner) RunNow(ctx context.Context) bool {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Debug("Orphan scan already in progress, skipping tick")
		return false
	}
	defer w.running.Store(false)

	started := time.Now()
	found, recorded := w.scans.ScanAndRecord(ctx)

	if found > 0 || recorded > 0 {
		w.logger.Info("Orphan scan completed",
			"found", found,
			"recorded", recorded,
			"duration", time.Since(started).String())
	} else {
		w.logger.Debug("Orphan scan completed, nothing to record", "duration", time.Since(started).String())
	}

	return true
}
