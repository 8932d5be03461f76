// Package notify persists future notification deliveries so they survive
// process restarts, and fires or expires them without relying on a live
// timer. The periodic due-check is authoritative; the short-horizon timer
// is only a latency optimization layered on top.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mvalente/daybook/internal/bus"
	"github.com/mvalente/daybook/internal/store"
	"go.uber.org/zap"
)

// Channel presents a fully-formed notification to the user. The scheduler
// does not know how it is rendered.
type Channel interface {
	Present(n store.Notification)
}

// Defaults for the scheduler's timing knobs.
const (
	DefaultCheckInterval = 30 * time.Second
	DefaultShortHorizon  = 5 * time.Minute
	DefaultGraceWindow   = time.Hour
	DefaultRetention     = 30 * 24 * time.Hour
)

// Options configures a Scheduler. Zero values select the defaults.
type Options struct {
	CheckInterval time.Duration // periodic due-check cadence
	ShortHorizon  time.Duration // arm an extra timer for deliveries this close
	GraceWindow   time.Duration // max lateness before a delivery is missed
	Retention     time.Duration // history window for terminal records
}

func (o *Options) fill() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.ShortHorizon <= 0 {
		o.ShortHorizon = DefaultShortHorizon
	}
	if o.GraceWindow <= 0 {
		o.GraceWindow = DefaultGraceWindow
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
}

// Scheduler owns the notifications collection: it is the only writer of
// notification status transitions.
type Scheduler struct {
	db      *store.DB
	channel Channel
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	cancel context.CancelFunc

	timerMu    sync.Mutex
	shortTimer *time.Timer
}

// NewScheduler creates a new notification scheduler.
func NewScheduler(db *store.DB, ch Channel, b *bus.Bus, logger *zap.Logger, opts Options) *Scheduler {
	opts.fill()
	return &Scheduler{
		db:      db,
		channel: ch,
		bus:     b,
		logger:  logger,
		opts:    opts,
	}
}

// Schedule persists a notification for future delivery and returns its id.
// A notification already due is delivered (or expired, past the grace
// window) immediately instead of being left pending.
func (s *Scheduler) Schedule(n store.Notification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Status = store.NotifyPending
	n.CreatedAt = time.Now().UnixMilli()
	if err := s.db.PutNotification(&n); err != nil {
		return "", err
	}

	now := time.Now().UnixMilli()
	switch {
	case n.ScheduledAt <= now:
		s.fire(n, now, false)
	case n.ScheduledAt-now <= s.opts.ShortHorizon.Milliseconds():
		s.armShortTimer(time.Duration(n.ScheduledAt-now) * time.Millisecond)
	}
	return n.ID, nil
}

// Cancel soft-cancels a pending notification: the record is kept for
// history with status expired. Cancelling a delivered or already-expired
// notification is a no-op.
func (s *Scheduler) Cancel(id string) error {
	_, err := s.db.MarkNotificationExpired(id)
	return err
}

// Start runs the one-time missed-notification sweep, then launches the
// periodic due-check loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	// Recover anything that came due while the process was not running.
	// Missed deliveries are aggregated into one summary alert so a return
	// from a long offline stretch does not flood the user.
	s.sweep(true)

	go s.loop(ctx)
}

// Stop tears down the due-check loop and the short-horizon timer. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.timerMu.Lock()
	if s.shortTimer != nil {
		s.shortTimer.Stop()
		s.shortTimer = nil
	}
	s.timerMu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(false)
			s.purge()
		case <-ctx.Done():
			return
		}
	}
}

// sweep delivers or expires every due pending notification. When aggregate
// is set, deliveries are collapsed into a single summary presentation.
func (s *Scheduler) sweep(aggregate bool) {
	now := time.Now().UnixMilli()
	due, err := s.db.DueNotifications(now)
	if err != nil {
		s.logger.Error("due-check query failed", zap.Error(err))
		return
	}

	var missed []store.Notification
	for _, n := range due {
		if delivered := s.fire(n, now, aggregate); delivered && aggregate {
			missed = append(missed, n)
		}
	}

	if len(missed) == 1 {
		// A single missed notification is presented as itself.
		n := missed[0]
		n.DeliveredAt = now
		n.Status = store.NotifyDelivered
		s.channel.Present(n)
		s.publishDelivered(n)
	} else if len(missed) > 1 {
		summary := store.Notification{
			ID:          uuid.NewString(),
			Title:       "While you were away",
			Body:        fmt.Sprintf("%d reminders came due", len(missed)),
			ScheduledAt: now,
			Status:      store.NotifyDelivered,
		}
		s.channel.Present(summary)
		if s.bus != nil {
			s.bus.Emit(bus.KindNotifyMissedSummary, missed)
		}
	}

	s.armForUpcoming(now)
}

// fire transitions a due notification and presents it unless the caller is
// aggregating. Returns true only when this call won the pending->delivered
// transition; a concurrent sweep observing the same row becomes a no-op.
func (s *Scheduler) fire(n store.Notification, now int64, aggregate bool) bool {
	if now-n.ScheduledAt > s.opts.GraceWindow.Milliseconds() {
		// Too stale to surprise the user with.
		if expired, err := s.db.MarkNotificationExpired(n.ID); err != nil {
			s.logger.Error("expire failed", zap.String("id", n.ID), zap.Error(err))
		} else if expired {
			s.logger.Info("notification expired past grace window",
				zap.String("id", n.ID),
				zap.Int64("scheduled_at", n.ScheduledAt))
		}
		return false
	}

	delivered, err := s.db.MarkNotificationDelivered(n.ID, now)
	if err != nil {
		s.logger.Error("deliver failed", zap.String("id", n.ID), zap.Error(err))
		return false
	}
	if !delivered {
		// Lost the race to another due-check; status already terminal.
		return false
	}

	if !aggregate {
		n.DeliveredAt = now
		n.Status = store.NotifyDelivered
		s.channel.Present(n)
		s.publishDelivered(n)
	}
	return true
}

// armForUpcoming arms the single short-horizon timer for the soonest
// pending delivery, if any falls inside the horizon.
func (s *Scheduler) armForUpcoming(now int64) {
	upcoming, err := s.db.UpcomingNotifications(now, s.opts.ShortHorizon.Milliseconds())
	if err != nil {
		s.logger.Error("upcoming query failed", zap.Error(err))
		return
	}
	if len(upcoming) == 0 {
		return
	}
	s.armShortTimer(time.Duration(upcoming[0].ScheduledAt-now) * time.Millisecond)
}

func (s *Scheduler) armShortTimer(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.shortTimer != nil {
		s.shortTimer.Stop()
	}
	s.shortTimer = time.AfterFunc(d, func() { s.sweep(false) })
}

func (s *Scheduler) purge() {
	cutoff := time.Now().Add(-s.opts.Retention).UnixMilli()
	n, err := s.db.PurgeNotificationsBefore(cutoff)
	if err != nil {
		s.logger.Error("notification purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("purged notification history", zap.Int64("count", n))
	}
}

func (s *Scheduler) publishDelivered(n store.Notification) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(bus.KindNotifyDelivered, n)
}
