// Package syncer owns the offline-first mutation path: optimistic local
// writes, the durable replay queue, and reconciliation of divergent records.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mvalente/daybook/internal/bus"
	"github.com/mvalente/daybook/internal/connectivity"
	"github.com/mvalente/daybook/internal/remote"
	"github.com/mvalente/daybook/internal/store"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is the replay retry ceiling. An action that fails this
// many times is dropped and surfaced as a failure, never retried forever.
const DefaultMaxAttempts = 3

// Mutation describes a single local edit to record.
type Mutation struct {
	Type       store.ActionType
	EntityType string
	EntityID   string
	Record     *store.Record // create/update: full entity body
	State      string        // toggle_state: target domain state
	OwnerID    string
}

// DrainResult summarizes one queue drain pass.
type DrainResult struct {
	Applied   int
	Failed    int
	Remaining int
}

// Coordinator decides what to persist locally on a mutation, when to queue
// a replay action, and how to reconcile on reconnect. Remote failures are
// converted to pending/conflict state, never returned to the caller; only
// storage errors propagate.
type Coordinator struct {
	db          *store.DB
	applier     remote.Applier
	tracker     *connectivity.Tracker
	bus         *bus.Bus
	logger      *zap.Logger
	maxAttempts int

	mu       sync.Mutex
	inflight *drainRun
}

type drainRun struct {
	done chan struct{}
	res  DrainResult
	err  error
}

// NewCoordinator creates a new sync coordinator. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewCoordinator(db *store.DB, applier remote.Applier, tracker *connectivity.Tracker, b *bus.Bus, logger *zap.Logger, maxAttempts int) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Coordinator{
		db:          db,
		applier:     applier,
		tracker:     tracker,
		bus:         b,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// RecordLocalMutation writes the optimistic local state for a mutation and
// either applies it remotely right away (online) or queues it for replay
// (offline). Idempotent from the caller's perspective: re-recording the same
// entity state is an upsert.
func (c *Coordinator) RecordLocalMutation(ctx context.Context, m Mutation) error {
	if err := c.writeOptimistic(&m); err != nil {
		return fmt.Errorf("optimistic write: %w", err)
	}

	action, err := buildAction(m)
	if err != nil {
		return err
	}

	if !c.tracker.Online() {
		if err := c.db.EnqueueAction(action); err != nil {
			return fmt.Errorf("enqueue action: %w", err)
		}
		c.publishRecordUpdated(m.EntityID)
		return nil
	}

	// Online: apply immediately. A retryable failure falls back to the
	// queue; a non-retryable one is a conflict for a human to resolve.
	if err := c.apply(ctx, action); err != nil {
		if remote.IsRetryable(err) {
			c.logger.Warn("immediate apply failed, queueing for replay",
				zap.String("entity_id", m.EntityID), zap.Error(err))
			if qerr := c.db.EnqueueAction(action); qerr != nil {
				return fmt.Errorf("enqueue action: %w", qerr)
			}
		} else {
			c.logger.Warn("immediate apply rejected, flagging conflict",
				zap.String("entity_id", m.EntityID), zap.Error(err))
			if serr := c.markConflict(m.EntityID); serr != nil {
				return serr
			}
		}
		c.publishRecordUpdated(m.EntityID)
		return nil
	}

	if m.Type != store.ActionDelete {
		if err := c.db.SetRecordSyncStatus(m.EntityID, store.SyncSynced); err != nil {
			return err
		}
	}
	c.publishRecordUpdated(m.EntityID)
	return nil
}

// writeOptimistic persists the local effect of the mutation with
// sync_status=pending before any network work happens.
func (c *Coordinator) writeOptimistic(m *Mutation) error {
	switch m.Type {
	case store.ActionCreate, store.ActionUpdate:
		if m.Record == nil {
			return fmt.Errorf("%s mutation requires a record", m.Type)
		}
		m.Record.SyncStatus = store.SyncPending
		if m.EntityID == "" {
			m.EntityID = m.Record.ID
		}
		if m.EntityType == "" {
			m.EntityType = m.Record.EntityType
		}
		return c.db.PutRecord(m.Record)
	case store.ActionDelete:
		return c.db.DeleteRecord(m.EntityID)
	case store.ActionToggleState:
		rec, err := c.db.GetRecord(m.EntityID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("toggle on unknown record %q", m.EntityID)
		}
		rec.State = m.State
		rec.SyncStatus = store.SyncPending
		m.EntityType = rec.EntityType
		m.Record = rec
		return c.db.PutRecord(rec)
	default:
		return fmt.Errorf("unknown mutation type %q", m.Type)
	}
}

func buildAction(m Mutation) (*store.Action, error) {
	a := &store.Action{
		ID:         uuid.NewString(),
		Type:       m.Type,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		OwnerID:    m.OwnerID,
		EnqueuedAt: time.Now().UnixMilli(),
	}
	switch m.Type {
	case store.ActionCreate, store.ActionUpdate:
		payload, err := json.Marshal(store.UpsertPayload{Record: *m.Record})
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		a.Payload = payload
	case store.ActionDelete:
		a.Payload = []byte(`{}`)
	case store.ActionToggleState:
		payload, err := json.Marshal(store.ToggleStatePayload{State: m.State})
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		a.Payload = payload
	}
	return a, nil
}

// DrainQueue replays the queue in FIFO order against the remote applier.
// Only one drain runs at a time: a concurrent call joins the in-flight run
// and returns its eventual result instead of starting a second drain.
func (c *Coordinator) DrainQueue(ctx context.Context) (DrainResult, error) {
	c.mu.Lock()
	if r := c.inflight; r != nil {
		c.mu.Unlock()
		<-r.done
		return r.res, r.err
	}
	r := &drainRun{done: make(chan struct{})}
	c.inflight = r
	c.mu.Unlock()

	r.res, r.err = c.drain(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(r.done)

	return r.res, r.err
}

func (c *Coordinator) drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	remaining, err := c.db.CountActions()
	if err != nil {
		return res, err
	}
	res.Remaining = remaining

	if !c.tracker.Online() {
		return res, nil
	}

	// Snapshot: actions enqueued after this point wait for the next drain.
	actions, err := c.db.PendingActions()
	if err != nil {
		return res, err
	}

	// Once an action fails but stays queued, later actions for the same
	// entity must wait for it: applying them now would reorder dependent
	// edits (create-then-update) against the remote side.
	blocked := make(map[string]bool)

	for _, a := range actions {
		// Strictly sequential: parallel replay could reorder dependent
		// edits on the same entity.
		if blocked[a.EntityID] {
			continue
		}
		if err := c.apply(ctx, &a); err != nil {
			if remote.IsRetryable(err) {
				attempts, serr := c.db.IncrementActionAttempts(a.ID)
				if serr != nil {
					return res, serr
				}
				if attempts < c.maxAttempts {
					c.logger.Warn("replay failed, will retry",
						zap.String("action_id", a.ID),
						zap.Int("attempts", attempts),
						zap.Error(err))
					blocked[a.EntityID] = true
					continue
				}
			}
			// Non-retryable, or retry ceiling reached: drop the action and
			// flag the record so a human can intervene.
			if serr := c.dropAction(&a, err); serr != nil {
				return res, serr
			}
			res.Failed++
			continue
		}

		if err := c.db.DeleteAction(a.ID); err != nil {
			return res, err
		}
		if a.Type != store.ActionDelete {
			if err := c.db.SetRecordSyncStatus(a.EntityID, store.SyncSynced); err != nil {
				return res, err
			}
		}
		res.Applied++
	}

	res.Remaining, err = c.db.CountActions()
	if err != nil {
		return res, err
	}

	if err := c.updateSyncState(res.Remaining); err != nil {
		return res, err
	}

	c.publish(bus.KindDrainCompleted, res)
	return res, nil
}

func (c *Coordinator) dropAction(a *store.Action, cause error) error {
	c.logger.Error("dropping action",
		zap.String("action_id", a.ID),
		zap.String("entity_id", a.EntityID),
		zap.Int("attempts", a.Attempts+1),
		zap.Error(cause))
	if err := c.db.DeleteAction(a.ID); err != nil {
		return err
	}
	if a.Type != store.ActionDelete {
		if err := c.markConflict(a.EntityID); err != nil {
			return err
		}
	}
	c.publish(bus.KindActionFailed, map[string]string{
		"action_id": a.ID,
		"entity_id": a.EntityID,
		"error":     cause.Error(),
	})
	return nil
}

// ReconcileUnsynced pushes pending records that have no queued action (direct
// edits) to the remote side. Any remote error flags the record as a conflict
// instead of retrying blindly; conflicted records are never auto-applied.
func (c *Coordinator) ReconcileUnsynced(ctx context.Context) error {
	if !c.tracker.Online() {
		return nil
	}

	recs, err := c.db.RecordsBySyncStatus(store.SyncPending)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		covered, err := c.db.HasActionForEntity(rec.ID)
		if err != nil {
			return err
		}
		if covered {
			continue
		}

		payload, err := json.Marshal(store.UpsertPayload{Record: rec})
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := c.applier.Update(ctx, rec.EntityType, rec.ID, payload); err != nil {
			c.logger.Warn("reconcile push failed, flagging conflict",
				zap.String("entity_id", rec.ID), zap.Error(err))
			if serr := c.markConflict(rec.ID); serr != nil {
				return serr
			}
			continue
		}
		if err := c.db.SetRecordSyncStatus(rec.ID, store.SyncSynced); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) apply(ctx context.Context, a *store.Action) error {
	// The replay switch is exhaustive over the payload variants; an unknown
	// type is a programming error surfaced by DecodePayload.
	if _, err := a.DecodePayload(); err != nil {
		return err
	}
	switch a.Type {
	case store.ActionCreate:
		return c.applier.Create(ctx, a.EntityType, a.EntityID, a.Payload)
	case store.ActionUpdate, store.ActionToggleState:
		return c.applier.Update(ctx, a.EntityType, a.EntityID, a.Payload)
	case store.ActionDelete:
		return c.applier.Delete(ctx, a.EntityType, a.EntityID)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

func (c *Coordinator) markConflict(entityID string) error {
	if err := c.db.SetRecordSyncStatus(entityID, store.SyncConflict); err != nil {
		return err
	}
	c.publish(bus.KindConflictDetected, map[string]string{"entity_id": entityID})
	return nil
}

func (c *Coordinator) updateSyncState(pending int) error {
	now := time.Now().UnixMilli()
	if err := c.db.SetSyncState(store.StateLastSyncAt, strconv.FormatInt(now, 10)); err != nil {
		return err
	}
	return c.db.SetSyncState(store.StatePendingCount, strconv.Itoa(pending))
}

func (c *Coordinator) publishRecordUpdated(entityID string) {
	c.publish(bus.KindRecordUpdated, map[string]string{"entity_id": entityID})
}

func (c *Coordinator) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(kind, payload)
}
