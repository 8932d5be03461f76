package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

// TestMigrateSchemaHasRequiredColumns verifies the migration creates all
// columns the sync and notification layers depend on.
func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert record", "INSERT INTO records (id, entity_type, title, body, state, due_at, last_modified, sync_status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", []any{"r1", "task", "Buy milk", "", "open", 0, 1000, "pending"}},
		{"enqueue action", "INSERT INTO actions (id, action_type, entity_type, entity_id, payload, owner_id, enqueued_at, attempts) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", []any{"a1", "create", "task", "r1", "{}", "u1", 1000, 0}},
		{"set sync state", "INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)", []any{"k", "v", 1000}},
		{"insert notification", "INSERT INTO notifications (id, title, body, scheduled_at, created_at, status) VALUES (?, ?, ?, ?, ?, ?)", []any{"n1", "Reminder", "milk", 2000, 1000, "pending"}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}

	// Search must see the raw insert in either mode (FTS trigger or LIKE).
	results, err := db.SearchRecords("milk", "", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != "r1" {
		t.Errorf("search results = %+v, want [r1]", results)
	}
}

// TestMigrateWithoutFTSModule covers a SQLite build without the fts5 module:
// schema setup must still succeed and search must stay usable.
func TestMigrateWithoutFTSModule(t *testing.T) {
	db := testDB(t)
	db.fts = false

	if err := db.PutRecord(&Record{ID: "t1", EntityType: "task", Title: "Buy milk", Body: "two liters from the corner shop", SyncStatus: SyncSynced}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchRecords("milk", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Record.ID != "t1" {
		t.Fatalf("fallback search results = %+v, want [t1]", results)
	}
	if results[0].Snippet == "" {
		t.Error("fallback search should still produce a snippet")
	}

	results, err = db.SearchRecords("milk", "note", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("entity filter ignored in fallback mode: %+v", results)
	}
}

func TestOpenUnavailablePath(t *testing.T) {
	_, err := Open("/nonexistent-dir/sub/test.db")
	if err == nil {
		t.Fatal("Open() should fail for an unwritable path")
	}
}

func TestPutRecordStampsLastModified(t *testing.T) {
	db := testDB(t)

	r := &Record{ID: "t1", EntityType: "task", Title: "Buy milk", SyncStatus: SyncPending}
	before := time.Now().UnixMilli()
	if err := db.PutRecord(r); err != nil {
		t.Fatal(err)
	}
	if r.LastModified < before {
		t.Errorf("last_modified = %d, want >= %d", r.LastModified, before)
	}

	got, err := db.GetRecord("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Title != "Buy milk" || got.SyncStatus != SyncPending {
		t.Errorf("got %+v, want Buy milk/pending", got)
	}
}

func TestRestoreRecordPreservesTimestamp(t *testing.T) {
	db := testDB(t)

	r := &Record{ID: "t1", EntityType: "task", Title: "remote title", LastModified: 12345, SyncStatus: SyncSynced}
	if err := db.RestoreRecord(r); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetRecord("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastModified != 12345 {
		t.Errorf("last_modified = %d, want 12345 (remote-authoritative)", got.LastModified)
	}
	if got.SyncStatus != SyncSynced {
		t.Errorf("sync_status = %s, want synced", got.SyncStatus)
	}
}

func TestGetRecordMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetRecord("missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestRecordsBySyncStatus(t *testing.T) {
	db := testDB(t)

	for _, r := range []*Record{
		{ID: "a", EntityType: "task", SyncStatus: SyncSynced},
		{ID: "b", EntityType: "task", SyncStatus: SyncPending},
		{ID: "c", EntityType: "note", SyncStatus: SyncConflict},
	} {
		if err := db.PutRecord(r); err != nil {
			t.Fatal(err)
		}
	}

	conflicts, err := db.RecordsBySyncStatus(SyncConflict)
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != "c" {
		t.Errorf("conflicts = %+v, want [c]", conflicts)
	}

	n, err := db.CountRecordsBySyncStatus(SyncPending)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}
}

func TestActionQueueFIFO(t *testing.T) {
	db := testDB(t)

	for i, id := range []string{"a1", "a2", "a3"} {
		a := &Action{
			ID: id, Type: ActionCreate, EntityType: "task", EntityID: "t" + id,
			Payload: []byte(`{}`), OwnerID: "u1", EnqueuedAt: int64(1000 + i),
		}
		if err := db.EnqueueAction(a); err != nil {
			t.Fatal(err)
		}
	}

	actions, err := db.PendingActions()
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(actions))
	}
	for i, want := range []string{"a1", "a2", "a3"} {
		if actions[i].ID != want {
			t.Errorf("actions[%d] = %s, want %s (FIFO order)", i, actions[i].ID, want)
		}
	}

	if err := db.DeleteAction("a2"); err != nil {
		t.Fatal(err)
	}
	n, err := db.CountActions()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("queue depth = %d, want 2", n)
	}
}

// TestActionQueueFIFOSameTimestamp pins the replay order for actions
// enqueued within the same millisecond. Ordering must come from the
// insertion sequence: wall-clock ties with random ids used to shuffle
// the queue.
func TestActionQueueFIFOSameTimestamp(t *testing.T) {
	db := testDB(t)

	// ids deliberately sort against insertion order.
	for _, id := range []string{"zz-first", "mm-second", "aa-third"} {
		a := &Action{
			ID: id, Type: ActionUpdate, EntityType: "task", EntityID: "t1",
			Payload: []byte(`{}`), OwnerID: "u1", EnqueuedAt: 1000,
		}
		if err := db.EnqueueAction(a); err != nil {
			t.Fatal(err)
		}
	}

	actions, err := db.PendingActions()
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(actions))
	}
	for i, want := range []string{"zz-first", "mm-second", "aa-third"} {
		if actions[i].ID != want {
			t.Errorf("actions[%d] = %s, want %s (insertion order)", i, actions[i].ID, want)
		}
	}
}

func TestIncrementActionAttempts(t *testing.T) {
	db := testDB(t)

	a := &Action{ID: "a1", Type: ActionUpdate, EntityType: "task", EntityID: "t1", Payload: []byte(`{}`), EnqueuedAt: 1000}
	if err := db.EnqueueAction(a); err != nil {
		t.Fatal(err)
	}

	for want := 1; want <= 3; want++ {
		got, err := db.IncrementActionAttempts("a1")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}
}

func TestHasActionForEntity(t *testing.T) {
	db := testDB(t)

	a := &Action{ID: "a1", Type: ActionUpdate, EntityType: "task", EntityID: "t1", Payload: []byte(`{}`), EnqueuedAt: 1000}
	if err := db.EnqueueAction(a); err != nil {
		t.Fatal(err)
	}

	has, err := db.HasActionForEntity("t1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("expected action for t1")
	}
	has, err = db.HasActionForEntity("t2")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("no action should exist for t2")
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)

	v, err := db.GetSyncState(StateLastSyncAt)
	if err != nil {
		t.Fatal(err)
	}
	if v != "" {
		t.Errorf("unset key = %q, want empty", v)
	}

	if err := db.SetSyncState(StateLastSyncAt, "1000"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState(StateLastSyncAt, "2000"); err != nil {
		t.Fatal(err)
	}

	v, err = db.GetSyncState(StateLastSyncAt)
	if err != nil {
		t.Fatal(err)
	}
	if v != "2000" {
		t.Errorf("value = %q, want 2000 (overwrite)", v)
	}
}

func TestNotificationDeliveredGuard(t *testing.T) {
	db := testDB(t)

	n := &Notification{ID: "n1", Title: "Reminder", ScheduledAt: 1000, Status: NotifyPending}
	if err := db.PutNotification(n); err != nil {
		t.Fatal(err)
	}

	ok, err := db.MarkNotificationDelivered("n1", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first delivery should win")
	}

	// Second delivery attempt must be a no-op.
	ok, err = db.MarkNotificationDelivered("n1", 3000)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second delivery should report false")
	}

	got, err := db.GetNotification("n1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != NotifyDelivered || got.DeliveredAt != 2000 {
		t.Errorf("got %+v, want delivered at 2000", got)
	}
}

func TestNotificationExpireGuard(t *testing.T) {
	db := testDB(t)

	n := &Notification{ID: "n1", ScheduledAt: 1000, Status: NotifyPending}
	if err := db.PutNotification(n); err != nil {
		t.Fatal(err)
	}
	if _, err := db.MarkNotificationDelivered("n1", 2000); err != nil {
		t.Fatal(err)
	}

	// delivered -> expired is not a legal transition.
	ok, err := db.MarkNotificationExpired("n1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expire after delivery should be a no-op")
	}
}

func TestDueAndUpcomingNotifications(t *testing.T) {
	db := testDB(t)

	for _, n := range []*Notification{
		{ID: "past", ScheduledAt: 500, Status: NotifyPending},
		{ID: "soon", ScheduledAt: 1500, Status: NotifyPending},
		{ID: "later", ScheduledAt: 10000, Status: NotifyPending},
	} {
		if err := db.PutNotification(n); err != nil {
			t.Fatal(err)
		}
	}

	due, err := db.DueNotifications(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != "past" {
		t.Errorf("due = %+v, want [past]", due)
	}

	upcoming, err := db.UpcomingNotifications(1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != "soon" {
		t.Errorf("upcoming = %+v, want [soon]", upcoming)
	}
}

func TestPurgeKeepsPending(t *testing.T) {
	db := testDB(t)

	for _, n := range []*Notification{
		{ID: "old-delivered", ScheduledAt: 100, Status: NotifyDelivered},
		{ID: "old-expired", ScheduledAt: 100, Status: NotifyExpired},
		{ID: "old-pending", ScheduledAt: 100, Status: NotifyPending},
	} {
		if err := db.PutNotification(n); err != nil {
			t.Fatal(err)
		}
	}

	purged, err := db.PurgeNotificationsBefore(1000)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}

	got, err := db.GetNotification("old-pending")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("pending notification must survive purge")
	}
}

func TestSearchRecords(t *testing.T) {
	db := testDB(t)

	if err := db.PutRecord(&Record{ID: "t1", EntityType: "task", Title: "Buy milk", Body: "two liters", SyncStatus: SyncSynced}); err != nil {
		t.Fatal(err)
	}
	if err := db.PutRecord(&Record{ID: "n1", EntityType: "note", Title: "Meeting notes", Body: "milk budget discussion", SyncStatus: SyncSynced}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchRecords("milk", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	results, err = db.SearchRecords("milk", "note", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Record.ID != "n1" {
		t.Errorf("filtered results = %+v, want [n1]", results)
	}
}

func TestDecodePayloadVariants(t *testing.T) {
	a := &Action{Type: ActionCreate, Payload: []byte(`{"record":{"ID":"t1"}}`)}
	p, err := a.DecodePayload()
	if err != nil {
		t.Fatal(err)
	}
	if up, ok := p.(UpsertPayload); !ok || up.Record.ID != "t1" {
		t.Errorf("payload = %+v, want UpsertPayload t1", p)
	}

	a = &Action{Type: ActionToggleState, Payload: []byte(`{"state":"done"}`)}
	p, err = a.DecodePayload()
	if err != nil {
		t.Fatal(err)
	}
	if tp, ok := p.(ToggleStatePayload); !ok || tp.State != "done" {
		t.Errorf("payload = %+v, want toggle to done", p)
	}

	a = &Action{Type: "bogus", Payload: []byte(`{}`)}
	if _, err := a.DecodePayload(); err == nil {
		t.Error("unknown action type should fail to decode")
	}
}
