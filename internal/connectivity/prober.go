package connectivity

import (
	"context"
	"time"
)

// CheckFunc reports whether the remote side is currently reachable.
type CheckFunc func(ctx context.Context) bool

// Prober feeds the tracker from a periodic reachability check. It stands in
// for a platform online/offline signal on hosts that do not provide one.
type Prober struct {
	tracker  *Tracker
	check    CheckFunc
	interval time.Duration
	cancel   context.CancelFunc
}

// NewProber creates a prober. interval <= 0 selects 15 seconds.
func NewProber(tracker *Tracker, check CheckFunc, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		tracker:  tracker,
		check:    check,
		interval: interval,
	}
}

// Start probes once immediately, then on the configured interval.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	go func() {
		p.tracker.SetOnline(p.check(ctx))

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.tracker.SetOnline(p.check(ctx))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the probe loop.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}
