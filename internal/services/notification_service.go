package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/peerfund/backend/internal/models"
)

// notificationTTL is how long a stored notification stays visible.
const notificationTTL = 30 * 24 * time.Hour

// NotificationService persists the events emitted by the ledger operations and
// serves the user's notification center. Delivery is best-effort: a failed
// insert is logged and swallowed so it can never fail the money movement that
// produced it.
type NotificationService struct {
	db *sql.DB
}

func NewNotificationService(db *sql.DB) *NotificationService {
	return &NotificationService{db: db}
}

// Dispatch stores a batch of events, typically emitted by a just-committed
// ledger operation.
func (s *NotificationService) Dispatch(ctx context.Context, events []models.Notification) {
	for _, event := range events {
		if err := s.emit(ctx, event); err != nil {
			log.Printf("[NOTIFY] Failed to store %s notification for user %d: %v",
				event.Type, event.UserID, err)
		}
	}
}

func (s *NotificationService) emit(ctx context.Context, n models.Notification) error {
	expiresAt := time.Now().Add(notificationTTL)

	var relatedLoan any
	if n.RelatedLoan != "" {
		relatedLoan = n.RelatedLoan
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, priority, related_loan_id, read, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, NOW())`,
		n.UserID, n.Type, n.Title, n.Message, n.Priority, relatedLoan, expiresAt)
	return err
}

// ListForUser returns the user's unexpired notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID int, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, priority, COALESCE(related_loan_id, ''), read, expires_at, created_at
		FROM notifications
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.Priority, &n.RelatedLoan, &n.Read, &n.ExpiresAt, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// UnreadCount returns the user's unread, unexpired notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND read = false AND expires_at > NOW()`, userID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`,
		notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks all of the user's notifications read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

// DeleteExpired removes notifications past their expiry. Called periodically
// from the sweep scheduler's host.
func (s *NotificationService) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	return res.RowsAffected()
}
