// Package status derives the live sync summary shown by the UI. It is a
// read-only consumer of the store and the connectivity tracker and performs
// no network I/O.
package status

import (
	"strconv"

	"github.com/mvalente/daybook/internal/connectivity"
	"github.com/mvalente/daybook/internal/store"
)

// Report is the pull-based sync summary.
type Report struct {
	Online     bool
	Pending    int // queued actions plus pending direct edits
	Conflicted int
	LastSyncAt int64 // unix ms, 0 = never synced
}

// Reporter computes Report from store contents and the connectivity signal.
type Reporter struct {
	db      *store.DB
	tracker *connectivity.Tracker
}

// NewReporter creates a new status reporter.
func NewReporter(db *store.DB, tracker *connectivity.Tracker) *Reporter {
	return &Reporter{db: db, tracker: tracker}
}

// Report returns the current sync summary.
func (r *Reporter) Report() (Report, error) {
	rep := Report{Online: r.tracker.Online()}

	queued, err := r.db.CountActions()
	if err != nil {
		return rep, err
	}
	// Pending records covered by a queued action are already counted as
	// queue depth; the uncovered ones are direct edits awaiting reconcile.
	uncovered, err := r.db.CountUncoveredPendingRecords()
	if err != nil {
		return rep, err
	}
	rep.Pending = queued + uncovered

	rep.Conflicted, err = r.db.CountRecordsBySyncStatus(store.SyncConflict)
	if err != nil {
		return rep, err
	}

	raw, err := r.db.GetSyncState(store.StateLastSyncAt)
	if err != nil {
		return rep, err
	}
	if raw != "" {
		rep.LastSyncAt, _ = strconv.ParseInt(raw, 10, 64)
	}
	return rep, nil
}
