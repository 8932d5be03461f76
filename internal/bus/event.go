package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the sync core. Subscribers filter by prefix,
// e.g. "sync." receives every sync event.
const (
	KindRecordUpdated       = "record.updated"
	KindDrainCompleted      = "sync.drain_completed"
	KindActionFailed        = "sync.action_failed"
	KindConflictDetected    = "sync.conflict_detected"
	KindConflictResolved    = "conflict.resolved"
	KindNotifyDelivered     = "notification.delivered"
	KindNotifyMissedSummary = "notification.missed_summary"
	KindConnectivityChanged = "connectivity.changed"
)
