// Package conflict exposes divergent records to the UI and applies the
// user's resolution choice. The resolver never reads the remote side: when
// the remote version wins, the caller must have already written it through
// store.RestoreRecord before calling Resolve.
package conflict

import (
	"github.com/mvalente/daybook/internal/bus"
	"github.com/mvalente/daybook/internal/store"
	"go.uber.org/zap"
)

// Resolver applies manual conflict resolutions to the local store.
type Resolver struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewResolver creates a new conflict resolver.
func NewResolver(db *store.DB, b *bus.Bus, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, bus: b, logger: logger}
}

// ListConflicts returns all records currently flagged as conflicted.
func (r *Resolver) ListConflicts() ([]store.Record, error) {
	return r.db.RecordsBySyncStatus(store.SyncConflict)
}

// Resolve applies the user's choice for a conflicted record. useLocal resets
// the record to pending so the next drain or reconcile pass retries it;
// otherwise the record is marked synced as-is, accepting the remote value
// the caller already restored.
//
// Resolving a record that is no longer conflicted is a no-op, which makes
// Resolve idempotent. A record deleted remotely since the conflict was
// flagged is dropped silently rather than recreated.
func (r *Resolver) Resolve(entityID string, useLocal bool) error {
	rec, err := r.db.GetRecord(entityID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Deleted since the conflict was flagged; nothing to resolve.
		r.logger.Info("conflict target gone, dropping", zap.String("entity_id", entityID))
		return nil
	}
	if rec.SyncStatus != store.SyncConflict {
		return nil
	}

	target := store.SyncSynced
	if useLocal {
		target = store.SyncPending
	}
	if err := r.db.SetRecordSyncStatus(entityID, target); err != nil {
		return err
	}

	r.logger.Info("conflict resolved",
		zap.String("entity_id", entityID),
		zap.Bool("use_local", useLocal))
	if r.bus != nil {
		r.bus.Emit(bus.KindConflictResolved, Resolution{
			EntityID: entityID,
			UseLocal: useLocal,
		})
	}
	return nil
}

// Resolution is the payload for conflict resolution events.
type Resolution struct {
	EntityID string
	UseLocal bool
}
