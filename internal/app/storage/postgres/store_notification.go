package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/notification"
)

const notificationColumns = `id, user_id, event_id, event_type, channel, status, is_read,
	 delivered_at, failed_at, read_at, created_at, updated_at`

func (s *Store) CreateNotificationIfAbsent(ctx context.Context, n notification.Notification) (notification.Notification, bool, error) {
	existing, err := s.getNotificationByEventChannel(ctx, n.EventID, n.Channel)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return notification.Notification{}, false, err
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	if n.Status == "" {
		n.Status = notification.StatusPending
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (event_id, channel) DO NOTHING
	`, n.ID, n.UserID, n.EventID, string(n.EventType), string(n.Channel), string(n.Status), n.IsRead,
		toNullTime(n.DeliveredAt), toNullTime(n.FailedAt), toNullTime(n.ReadAt), n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return notification.Notification{}, false, err
	}

	created, err := s.getNotificationByEventChannel(ctx, n.EventID, n.Channel)
	if err != nil {
		return notification.Notification{}, false, err
	}
	return created, created.ID == n.ID, nil
}

func (s *Store) getNotificationByEventChannel(ctx context.Context, eventID string, channel notification.Channel) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE event_id = $1 AND channel = $2
	`, eventID, string(channel))
	return scanNotification(row)
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

func (s *Store) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	existing, err := s.GetNotification(ctx, n.ID)
	if err != nil {
		return notification.Notification{}, err
	}
	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status=$2, is_read=$3, delivered_at=$4, failed_at=$5, read_at=$6, updated_at=$7
		WHERE id = $1
	`, n.ID, string(n.Status), n.IsRead, toNullTime(n.DeliveredAt), toNullTime(n.FailedAt), toNullTime(n.ReadAt), n.UpdatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notification.Notification{}, sql.ErrNoRows
	}
	return n, nil
}

func (s *Store) ListPendingNotifications(ctx context.Context, limit int) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE status = $1 ORDER BY created_at LIMIT $2
	`, string(notification.StatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]notification.Notification, error) {
	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row rowScanner) (notification.Notification, error) {
	var (
		n           notification.Notification
		eventType   string
		channel     string
		status      string
		deliveredAt sql.NullTime
		failedAt    sql.NullTime
		readAt      sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.EventID, &eventType, &channel, &status, &n.IsRead,
		&deliveredAt, &failedAt, &readAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return notification.Notification{}, err
	}
	n.EventType = event.Type(eventType)
	n.Channel = notification.Channel(channel)
	n.Status = notification.Status(status)
	n.DeliveredAt = fromNullTime(deliveredAt)
	n.FailedAt = fromNullTime(failedAt)
	n.ReadAt = fromNullTime(readAt)
	return n, nil
}
