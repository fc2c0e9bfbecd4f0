package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/peerfund/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestNotificationDispatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewNotificationService(db)

	t.Run("stores each event", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(sqlmock.NewResult(2, 1))

		service.Dispatch(context.Background(), []models.Notification{
			{UserID: 1, Type: models.NotifyLoanFunded, Title: "Loan Funded Successfully!", Priority: models.PriorityHigh},
			{UserID: 2, Type: models.NotifyLoanFunded, Title: "Investment Confirmed", Priority: models.PriorityMedium},
		})

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is swallowed", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnError(fmt.Errorf("connection reset"))

		// Must not panic or surface the error.
		service.Dispatch(context.Background(), []models.Notification{
			{UserID: 1, Type: models.NotifyRepaymentDue, Title: "Payment Due Today"},
		})

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewNotificationService(db)
	now := time.Now()

	t.Run("list for user", func(t *testing.T) {
		expires := now.Add(notificationTTL)
		mock.ExpectQuery("SELECT id, user_id, type, title, message").
			WithArgs(1, 50).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "type", "title", "message", "priority",
				"related_loan_id", "read", "expires_at", "created_at",
			}).AddRow(7, 1, models.NotifyRepaymentDue, "Payment Due Today",
				"Your payment #3 of $106.62 is due today.", models.PriorityHigh,
				testLoanID, false, expires, now))

		notifications, err := service.ListForUser(context.Background(), 1, 0)
		assert.NoError(t, err)
		assert.Len(t, notifications, 1)
		assert.Equal(t, models.NotifyRepaymentDue, notifications[0].Type)
		assert.Equal(t, testLoanID, notifications[0].RelatedLoan)
	})

	t.Run("unread count", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notifications").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := service.UnreadCount(context.Background(), 1)
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("mark read rejects foreign notification", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications SET read = true").
			WithArgs(7, 99).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.MarkRead(context.Background(), 99, 7)
		assert.ErrorIs(t, err, ErrNotificationNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
