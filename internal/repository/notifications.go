package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/google/uuid"
)

// NotificationRepository is the per-recipient inbox backed by SQLite.
type NotificationRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db, now: time.Now}
}

// Create appends a notification to the recipient's inbox. A missing uuid or
// timestamp is filled in.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("notification store is not configured")
	}
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("recipient id is required")
	}
	if n.UUID == "" {
		n.UUID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (uuid, recipient_id, title, message, event_id, event_title, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UUID, n.RecipientID, n.Title, n.Message, n.EventID, n.EventTitle, boolToInt(n.Read), n.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uuid, recipient_id, title, message, event_id, event_title, read, created_at
		 FROM notifications
		 WHERE recipient_id = ?
		 ORDER BY created_at DESC, uuid ASC`,
		recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n       model.Notification
			read    int
			created int64
		)
		if err := rows.Scan(&n.UUID, &n.RecipientID, &n.Title, &n.Message, &n.EventID, &n.EventTitle, &read, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Read = read != 0
		n.Timestamp = time.UnixMilli(created).UTC()
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead sets the read flag, the only mutable field of a notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE recipient_id = ? AND uuid = ?`,
		recipientID, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectOneRow(res)
}

// Delete removes a notification from the recipient's inbox.
func (r *NotificationRepository) Delete(ctx context.Context, recipientID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE recipient_id = ? AND uuid = ?`,
		recipientID, id,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
