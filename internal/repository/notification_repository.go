package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/JRCMora/jms-api/internal/models"
)

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts one notification per entry in a single transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) (err error) {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO notifications (id, user_id, submission_id, event, message, payload, status, created_at, read_at)
	VALUES (:id, :user_id, :submission_id, :event, :message, :payload, :status, :created_at, :read_at)`
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Status == "" {
			n.Status = models.NotificationUnread
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if len(n.Payload) == 0 {
			n.Payload = []byte(`{}`)
		}
		if _, err = tx.NamedExecContext(ctx, query, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit notifications: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, user_id, submission_id, event, message, payload, status, created_at, read_at
	FROM notifications WHERE user_id = $1`)
	args := []interface{}{filter.UserID}
	if filter.UnreadOnly {
		args = append(args, models.NotificationUnread)
		builder.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flags a notification owned by the user as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, readAt time.Time) error {
	const query = `UPDATE notifications SET status = $1, read_at = $2 WHERE id = $3 AND user_id = $4`
	result, err := r.db.ExecContext(ctx, query, models.NotificationRead, readAt, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("notification rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
