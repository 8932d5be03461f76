package store

import (
	"database/sql"
	"time"
)

// PutRecord inserts or updates a record, stamping last_modified with the
// current time. Use RestoreRecord to write a remote-authoritative value
// without touching the timestamp.
func (db *DB) PutRecord(r *Record) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO records (id, entity_type, title, body, state, due_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_type = excluded.entity_type,
			title = excluded.title,
			body = excluded.body,
			state = excluded.state,
			due_at = excluded.due_at,
			last_modified = excluded.last_modified,
			sync_status = excluded.sync_status`,
		r.ID, r.EntityType, r.Title, r.Body, r.State, r.DueAt, now, r.SyncStatus)
	if err == nil {
		r.LastModified = now
	}
	return err
}

// RestoreRecord writes a remote-authoritative record as-is, preserving the
// caller-supplied last_modified. Used when accepting the remote version of
// a conflicted record.
func (db *DB) RestoreRecord(r *Record) error {
	_, err := db.Exec(`
		INSERT INTO records (id, entity_type, title, body, state, due_at, last_modified, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_type = excluded.entity_type,
			title = excluded.title,
			body = excluded.body,
			state = excluded.state,
			due_at = excluded.due_at,
			last_modified = excluded.last_modified,
			sync_status = excluded.sync_status`,
		r.ID, r.EntityType, r.Title, r.Body, r.State, r.DueAt, r.LastModified, r.SyncStatus)
	return err
}

// GetRecord returns a single record by id, or nil if absent.
func (db *DB) GetRecord(id string) (*Record, error) {
	var r Record
	err := db.QueryRow(`
		SELECT id, entity_type, title, body, state, due_at, last_modified, sync_status
		FROM records WHERE id = ?`, id).
		Scan(&r.ID, &r.EntityType, &r.Title, &r.Body, &r.State, &r.DueAt, &r.LastModified, &r.SyncStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecords returns records of the given entity type ordered by
// last_modified descending. An empty entityType returns everything.
func (db *DB) ListRecords(entityType string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
		SELECT id, entity_type, title, body, state, due_at, last_modified, sync_status
		FROM records`
	args := []any{}
	if entityType != "" {
		q += " WHERE entity_type = ?"
		args = append(args, entityType)
	}
	q += " ORDER BY last_modified DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EntityType, &r.Title, &r.Body, &r.State, &r.DueAt, &r.LastModified, &r.SyncStatus); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// RecordsBySyncStatus returns all records in the given sync state ordered by
// last_modified ascending, so older divergence is handled first.
func (db *DB) RecordsBySyncStatus(status SyncStatus) ([]Record, error) {
	rows, err := db.Query(`
		SELECT id, entity_type, title, body, state, due_at, last_modified, sync_status
		FROM records WHERE sync_status = ?
		ORDER BY last_modified ASC`, status)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EntityType, &r.Title, &r.Body, &r.State, &r.DueAt, &r.LastModified, &r.SyncStatus); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// SetRecordSyncStatus updates only the sync lifecycle state of a record.
func (db *DB) SetRecordSyncStatus(id string, status SyncStatus) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE records SET sync_status = ?, last_modified = ? WHERE id = ?`, status, now, id)
	return err
}

// DeleteRecord removes a record by id.
func (db *DB) DeleteRecord(id string) error {
	_, err := db.Exec(`DELETE FROM records WHERE id = ?`, id)
	return err
}

// CountRecordsBySyncStatus returns how many records are in the given state.
// CountUncoveredPendingRecords counts pending records that no queued action
// covers: direct edits waiting for a reconcile pass. Together with the queue
// depth this is the full sync backlog, with no double counting.
func (db *DB) CountUncoveredPendingRecords() (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM records r
		WHERE r.sync_status = ?
		AND NOT EXISTS (SELECT 1 FROM actions a WHERE a.entity_id = r.id)`,
		SyncPending).Scan(&n)
	return n, err
}

func (db *DB) CountRecordsBySyncStatus(status SyncStatus) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM records WHERE sync_status = ?`, status).Scan(&n)
	return n, err
}
