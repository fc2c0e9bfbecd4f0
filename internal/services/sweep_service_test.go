package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/peerfund/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSweepRun(t *testing.T) {
	asOf := time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC)
	dayStart := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	t.Run("due reminder with redis dedup", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewSweepService(db, redisClient, NewNotificationService(db))

		mock.ExpectQuery("SELECT fl.id, fl.borrower_id, se.payment_number").
			WithArgs(models.LoanActive, models.EntryPending, dayStart, dayEnd).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "borrower_id", "payment_number", "total_amount",
			}).AddRow(testLoanID, 1, 3, "106.62"))

		key := fmt.Sprintf("sweep:due:%s:2026-02-15", testLoanID)
		redisMock.ExpectSetNX(key, "1", dueReminderTTL).SetVal(true)

		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("SELECT DISTINCT fl.id, fl.borrower_id").
			WithArgs(models.LoanActive, models.EntryPending, dayStart).
			WillReturnRows(sqlmock.NewRows([]string{"id", "borrower_id"}))

		summary, err := service.Run(context.Background(), asOf)
		assert.NoError(t, err)
		assert.Equal(t, 1, summary.DueCount)
		assert.Equal(t, 0, summary.OverdueCount)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("dedup suppresses second reminder", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewSweepService(db, redisClient, NewNotificationService(db))

		mock.ExpectQuery("SELECT fl.id, fl.borrower_id, se.payment_number").
			WithArgs(models.LoanActive, models.EntryPending, dayStart, dayEnd).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "borrower_id", "payment_number", "total_amount",
			}).AddRow(testLoanID, 1, 3, "106.62"))

		key := fmt.Sprintf("sweep:due:%s:2026-02-15", testLoanID)
		redisMock.ExpectSetNX(key, "1", dueReminderTTL).SetVal(false)

		mock.ExpectQuery("SELECT DISTINCT fl.id, fl.borrower_id").
			WithArgs(models.LoanActive, models.EntryPending, dayStart).
			WillReturnRows(sqlmock.NewRows([]string{"id", "borrower_id"}))

		summary, err := service.Run(context.Background(), asOf)
		assert.NoError(t, err)
		assert.Equal(t, 0, summary.DueCount)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("overdue entries flip per loan", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSweepService(db, nil, NewNotificationService(db))

		mock.ExpectQuery("SELECT fl.id, fl.borrower_id, se.payment_number").
			WithArgs(models.LoanActive, models.EntryPending, dayStart, dayEnd).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "borrower_id", "payment_number", "total_amount",
			}))

		mock.ExpectQuery("SELECT DISTINCT fl.id, fl.borrower_id").
			WithArgs(models.LoanActive, models.EntryPending, dayStart).
			WillReturnRows(sqlmock.NewRows([]string{"id", "borrower_id"}).
				AddRow(testLoanID, 1))

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryOverdue, testLoanID, models.EntryPending, dayStart).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(sqlmock.NewResult(1, 1))

		summary, err := service.Run(context.Background(), asOf)
		assert.NoError(t, err)
		assert.Equal(t, 1, summary.OverdueCount)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rerun finds nothing to flip", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSweepService(db, nil, NewNotificationService(db))

		mock.ExpectQuery("SELECT fl.id, fl.borrower_id, se.payment_number").
			WithArgs(models.LoanActive, models.EntryPending, dayStart, dayEnd).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "borrower_id", "payment_number", "total_amount",
			}))

		mock.ExpectQuery("SELECT DISTINCT fl.id, fl.borrower_id").
			WithArgs(models.LoanActive, models.EntryPending, dayStart).
			WillReturnRows(sqlmock.NewRows([]string{"id", "borrower_id"}).
				AddRow(testLoanID, 1))

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryOverdue, testLoanID, models.EntryPending, dayStart).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		summary, err := service.Run(context.Background(), asOf)
		assert.NoError(t, err)
		assert.Equal(t, 0, summary.OverdueCount)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loan failure does not stall the pass", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSweepService(db, nil, NewNotificationService(db))
		otherLoan := "b4cc289f-9cf0-4999-aa23-bdf5f7654113"

		mock.ExpectQuery("SELECT fl.id, fl.borrower_id, se.payment_number").
			WithArgs(models.LoanActive, models.EntryPending, dayStart, dayEnd).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "borrower_id", "payment_number", "total_amount",
			}))

		mock.ExpectQuery("SELECT DISTINCT fl.id, fl.borrower_id").
			WithArgs(models.LoanActive, models.EntryPending, dayStart).
			WillReturnRows(sqlmock.NewRows([]string{"id", "borrower_id"}).
				AddRow(testLoanID, 1).
				AddRow(otherLoan, 2))

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryOverdue, testLoanID, models.EntryPending, dayStart).
			WillReturnError(fmt.Errorf("deadlock detected"))
		mock.ExpectRollback()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryOverdue, otherLoan, models.EntryPending, dayStart).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(sqlmock.NewResult(1, 1))

		summary, err := service.Run(context.Background(), asOf)
		assert.NoError(t, err)
		assert.Equal(t, 1, summary.OverdueCount)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
