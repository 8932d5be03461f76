package store

import (
	"encoding/json"
	"fmt"
)

// SyncStatus is the sync lifecycle state of a local record.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
)

// Record mirrors a remote task or note entity, plus the two local-only
// fields LastModified and SyncStatus.
type Record struct {
	ID           string
	EntityType   string // "task" or "note"
	Title        string
	Body         string
	State        string // domain state, e.g. "open", "done"
	DueAt        int64  // unix ms, 0 = no due date
	LastModified int64
	SyncStatus   SyncStatus
}

// ActionType identifies a queued mutation kind.
type ActionType string

const (
	ActionCreate      ActionType = "create"
	ActionUpdate      ActionType = "update"
	ActionDelete      ActionType = "delete"
	ActionToggleState ActionType = "toggle_state"
)

// Action is a mutation recorded while disconnected, replayed against the
// remote side in FIFO order per owner. Seq is assigned by the store on
// enqueue and defines the replay order; EnqueuedAt is wall-clock metadata
// and can tie.
type Action struct {
	Seq        int64
	ID         string
	Type       ActionType
	EntityType string
	EntityID   string
	Payload    json.RawMessage
	OwnerID    string
	EnqueuedAt int64
	Attempts   int
}

// UpsertPayload carries the full record body for create and update actions.
type UpsertPayload struct {
	Record Record `json:"record"`
}

// DeletePayload carries nothing beyond the action's entity id.
type DeletePayload struct{}

// ToggleStatePayload carries the target domain state for a toggle action.
type ToggleStatePayload struct {
	State string `json:"state"`
}

// DecodePayload decodes the payload variant matching the action type.
func (a *Action) DecodePayload() (any, error) {
	switch a.Type {
	case ActionCreate, ActionUpdate:
		var p UpsertPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", a.Type, err)
		}
		return p, nil
	case ActionDelete:
		return DeletePayload{}, nil
	case ActionToggleState:
		var p ToggleStatePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode toggle payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
}

// NotificationStatus is the delivery lifecycle state of a notification.
// Transitions are one-way: pending -> delivered or pending -> expired.
type NotificationStatus string

const (
	NotifyPending   NotificationStatus = "pending"
	NotifyDelivered NotificationStatus = "delivered"
	NotifyExpired   NotificationStatus = "expired"
)

// Notification is a durable future delivery record.
type Notification struct {
	ID          string
	Title       string
	Body        string
	ScheduledAt int64 // unix ms
	CreatedAt   int64
	DeliveredAt int64 // unix ms, 0 = not delivered
	Status      NotificationStatus
}

// SearchResult holds a record with a search snippet.
type SearchResult struct {
	Record  Record
	Snippet string
}

// Sync metadata keys stored in the sync_state table.
const (
	StateLastSyncAt   = "last_sync_at"
	StatePendingCount = "pending_count"
)
