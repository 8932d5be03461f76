package store

// EnqueueAction appends a queued action to the replay queue.
func (db *DB) EnqueueAction(a *Action) error {
	_, err := db.Exec(`
		INSERT INTO actions (id, action_type, entity_type, entity_id, payload, owner_id, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.EntityType, a.EntityID, string(a.Payload), a.OwnerID, a.EnqueuedAt, a.Attempts)
	return err
}

// PendingActions returns the full queue in strict enqueue order.
func (db *DB) PendingActions() ([]Action, error) {
	rows, err := db.Query(`
		SELECT seq, id, action_type, entity_type, entity_id, payload, owner_id, enqueued_at, attempts
		FROM actions ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actions []Action
	for rows.Next() {
		var a Action
		var payload string
		if err := rows.Scan(&a.Seq, &a.ID, &a.Type, &a.EntityType, &a.EntityID, &payload, &a.OwnerID, &a.EnqueuedAt, &a.Attempts); err != nil {
			return nil, err
		}
		a.Payload = []byte(payload)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// DeleteAction removes an action from the queue (successful replay or
// retry-ceiling drop).
func (db *DB) DeleteAction(id string) error {
	_, err := db.Exec(`DELETE FROM actions WHERE id = ?`, id)
	return err
}

// IncrementActionAttempts bumps the attempt counter and returns the new value.
func (db *DB) IncrementActionAttempts(id string) (int, error) {
	if _, err := db.Exec(`UPDATE actions SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return 0, err
	}
	var attempts int
	err := db.QueryRow(`SELECT attempts FROM actions WHERE id = ?`, id).Scan(&attempts)
	return attempts, err
}

// HasActionForEntity reports whether any queued action targets the entity.
// Reconciliation skips records that a queued action already covers.
func (db *DB) HasActionForEntity(entityID string) (bool, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM actions WHERE entity_id = ?`, entityID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountActions returns the current queue depth.
func (db *DB) CountActions() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM actions`).Scan(&n)
	return n, err
}
