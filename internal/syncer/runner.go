package syncer

import (
	"context"
	"time"

	"github.com/mvalente/daybook/internal/bus"
	"github.com/mvalente/daybook/internal/connectivity"
	"go.uber.org/zap"
)

// Runner drives the coordinator in the background: it drains the queue and
// reconciles unsynced records whenever connectivity returns, and retries on
// a fixed interval while the queue is non-empty.
type Runner struct {
	coord    *Coordinator
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
}

// NewRunner creates a new background sync runner. interval <= 0 selects a
// 30 second retry cadence.
func NewRunner(coord *Coordinator, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{
		coord:    coord,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start subscribes to connectivity transitions and begins the retry loop.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe(bus.KindConnectivityChanged, 16)

	go func() {
		defer unsub()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case evt := <-ch:
				change, ok := evt.Payload.(connectivity.Change)
				if !ok || change.To != connectivity.Online {
					continue
				}
				r.pass(ctx)
			case <-ticker.C:
				r.pass(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the runner. An in-flight drain runs to completion of its
// current queue snapshot.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) pass(ctx context.Context) {
	res, err := r.coord.DrainQueue(ctx)
	if err != nil {
		r.logger.Error("drain pass failed", zap.Error(err))
		return
	}
	if res.Applied > 0 || res.Failed > 0 {
		r.logger.Info("queue drained",
			zap.Int("applied", res.Applied),
			zap.Int("failed", res.Failed),
			zap.Int("remaining", res.Remaining))
	}
	if err := r.coord.ReconcileUnsynced(ctx); err != nil {
		r.logger.Error("reconcile pass failed", zap.Error(err))
	}
}
