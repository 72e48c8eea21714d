package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clubportal/internal/model"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (id, title, message, type, priority, run_id, created_by, created_at, scheduled_for, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.Title,
		n.Message,
		n.Type,
		n.Priority,
		n.RunID,
		n.CreatedBy,
		n.ScheduledFor,
		n.ExpiresAt,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// InsertDelivery writes one delivery record. The (notification, member)
// primary key keeps fan-out free of duplicates.
func (r *NotificationRepository) InsertDelivery(ctx context.Context, notificationID string, memberID int) error {
	query := `
		INSERT INTO notification_deliveries (notification_id, member_id, delivered_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := r.db.Exec(ctx, query, notificationID, memberID); err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	query := `
		SELECT id, title, message, type, priority, run_id, created_by, created_at, scheduled_for, expires_at
		FROM notifications
		WHERE id = $1
	`
	var n model.Notification
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.Priority,
		&n.RunID,
		&n.CreatedBy,
		&n.CreatedAt,
		&n.ScheduledFor,
		&n.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("notification %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// ListForRecipient returns the member's active notifications, newest
// delivery first. Dismissed and expired notifications are excluded; their
// delivery records stay.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, memberID int, limit int) ([]model.FeedItem, error) {
	query := `
		SELECT n.id, n.title, n.message, n.type, n.priority, n.run_id, n.created_by, n.created_at,
		       n.scheduled_for, n.expires_at,
		       s.name,
		       COALESCE(ru.title, ''), ru.run_date, COALESCE(ru.start_time, ''),
		       d.delivered_at, d.read_at
		FROM notification_deliveries d
		JOIN notifications n ON n.id = d.notification_id
		JOIN members s ON s.id = n.created_by
		LEFT JOIN runs ru ON ru.id = n.run_id
		WHERE d.member_id = $1
		  AND d.dismissed_at IS NULL
		  AND (n.expires_at IS NULL OR n.expires_at > NOW())
		ORDER BY d.delivered_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var items []model.FeedItem
	for rows.Next() {
		var it model.FeedItem
		err := rows.Scan(
			&it.ID,
			&it.Title,
			&it.Message,
			&it.Type,
			&it.Priority,
			&it.RunID,
			&it.CreatedBy,
			&it.CreatedAt,
			&it.ScheduledFor,
			&it.ExpiresAt,
			&it.SenderName,
			&it.RunTitle,
			&it.RunDate,
			&it.RunStartTime,
			&it.DeliveredAt,
			&it.ReadAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkRead sets read_at once; repeat calls are no-ops.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string, memberID int) error {
	query := `
		UPDATE notification_deliveries
		SET read_at = NOW()
		WHERE notification_id = $1 AND member_id = $2 AND read_at IS NULL
	`
	if _, err := r.db.Exec(ctx, query, notificationID, memberID); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// Dismiss marks the delivery dismissed, setting read_at if still unset.
// Repeat calls refresh dismissed_at; dismissal is terminal for the UI.
func (r *NotificationRepository) Dismiss(ctx context.Context, notificationID string, memberID int) error {
	query := `
		UPDATE notification_deliveries
		SET dismissed_at = NOW(), read_at = COALESCE(read_at, NOW())
		WHERE notification_id = $1 AND member_id = $2
	`
	if _, err := r.db.Exec(ctx, query, notificationID, memberID); err != nil {
		return fmt.Errorf("failed to dismiss notification: %w", err)
	}
	return nil
}

// Recipients returns the members holding a delivery record for the
// notification, in fan-out order.
func (r *NotificationRepository) Recipients(ctx context.Context, notificationID string) ([]model.Member, error) {
	query := `
		SELECT m.id, m.name, m.email, m.role, m.membership_status, m.affiliated, m.email_notifications_enabled
		FROM notification_deliveries d
		JOIN members m ON m.id = d.member_id
		WHERE d.notification_id = $1
		ORDER BY m.id
	`
	rows, err := r.db.Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}
