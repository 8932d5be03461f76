package store

import (
	"database/sql"
	"time"
)

// PutNotification inserts or updates a scheduled notification.
func (db *DB) PutNotification(n *Notification) error {
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO notifications (id, title, body, scheduled_at, created_at, delivered_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			scheduled_at = excluded.scheduled_at,
			delivered_at = excluded.delivered_at,
			status = excluded.status`,
		n.ID, n.Title, n.Body, n.ScheduledAt, n.CreatedAt, n.DeliveredAt, n.Status)
	return err
}

// GetNotification returns a notification by id, or nil if absent.
func (db *DB) GetNotification(id string) (*Notification, error) {
	var n Notification
	err := db.QueryRow(`
		SELECT id, title, body, scheduled_at, created_at, delivered_at, status
		FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Body, &n.ScheduledAt, &n.CreatedAt, &n.DeliveredAt, &n.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// DueNotifications returns pending notifications whose scheduled time has
// passed, oldest first.
func (db *DB) DueNotifications(now int64) ([]Notification, error) {
	return db.queryNotifications(`
		SELECT id, title, body, scheduled_at, created_at, delivered_at, status
		FROM notifications WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`, now)
}

// UpcomingNotifications returns pending notifications scheduled within
// (now, now+horizon], soonest first. Used to arm short-horizon timers.
func (db *DB) UpcomingNotifications(now, horizon int64) ([]Notification, error) {
	return db.queryNotifications(`
		SELECT id, title, body, scheduled_at, created_at, delivered_at, status
		FROM notifications WHERE status = 'pending' AND scheduled_at > ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`, now, now+horizon)
}

func (db *DB) queryNotifications(q string, args ...any) ([]Notification, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var notifs []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.ScheduledAt, &n.CreatedAt, &n.DeliveredAt, &n.Status); err != nil {
			return nil, err
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

// MarkNotificationDelivered transitions pending -> delivered. Returns false
// without error when the notification was no longer pending, so delivery
// stays idempotent even when two due-checks race.
func (db *DB) MarkNotificationDelivered(id string, at int64) (bool, error) {
	res, err := db.Exec(`
		UPDATE notifications SET status = 'delivered', delivered_at = ?
		WHERE id = ? AND status = 'pending'`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkNotificationExpired transitions pending -> expired. Returns false when
// the notification was no longer pending.
func (db *DB) MarkNotificationExpired(id string) (bool, error) {
	res, err := db.Exec(`
		UPDATE notifications SET status = 'expired'
		WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PurgeNotificationsBefore deletes delivered and expired notifications whose
// scheduled time predates the cutoff. Pending records are never purged.
func (db *DB) PurgeNotificationsBefore(cutoff int64) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM notifications
		WHERE status IN ('delivered', 'expired') AND scheduled_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
