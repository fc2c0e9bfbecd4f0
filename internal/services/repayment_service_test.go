package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/peerfund/backend/internal/gateway"
	"github.com/peerfund/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

const testLoanID = "a3bb189e-8bf9-3888-9912-ace4e6543002"

func loanRow(status string, outstanding string, completed int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"borrower_id", "lender_id", "outstanding_balance", "status",
		"payments_completed", "total_payments_required",
	}).AddRow(1, 2, outstanding, status, completed, 12)
}

func entryRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"principal_amount", "interest_amount", "total_amount", "status",
	}).AddRow("94.62", "12.00", "106.62", status)
}

func TestApplyPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRepaymentService(db, newMockGateway())
	paidAt := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

	t.Run("successful payment", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanActive, "1200.00", 0))
		mock.ExpectQuery("SELECT principal_amount, interest_amount, total_amount").
			WithArgs(testLoanID, 1).
			WillReturnRows(entryRow(models.EntryPending))
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryPaid, paidAt, "pi_1", testLoanID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT due_date FROM schedule_entries").
			WithArgs(testLoanID, models.EntryPaid).
			WillReturnRows(sqlmock.NewRows([]string{"due_date"}).
				AddRow(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
		mock.ExpectExec("UPDATE funded_loans").
			WithArgs(sqlmock.AnyArg(), 1, sqlmock.AnyArg(), models.LoanActive, testLoanID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, events, err := service.ApplyPayment(context.Background(), testLoanID, 1, "pi_1", 1, paidAt)
		assert.NoError(t, err)
		assert.Equal(t, "106.62", result.Amount.StringFixed(2))
		assert.Equal(t, "2.13", result.PlatformFee.StringFixed(2))
		assert.Equal(t, "104.49", result.LenderAmount.StringFixed(2))
		assert.Equal(t, "1105.38", result.RemainingBalance.StringFixed(2))
		assert.Equal(t, 1, result.PaymentsCompleted)
		assert.False(t, result.Completed)
		assert.Equal(t, models.LoanActive, result.LoanStatus)

		assert.Len(t, events, 2)
		assert.Equal(t, models.NotifyRepaymentReceived, events[0].Type)
		assert.Equal(t, 1, events[0].UserID)
		assert.Equal(t, 2, events[1].UserID)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate payment rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanActive, "1105.38", 1))
		mock.ExpectQuery("SELECT principal_amount, interest_amount, total_amount").
			WithArgs(testLoanID, 1).
			WillReturnRows(entryRow(models.EntryPaid))
		mock.ExpectRollback()

		_, _, err := service.ApplyPayment(context.Background(), testLoanID, 1, "pi_1", 1, paidAt)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("final payment completes loan", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanActive, "94.62", 11))
		mock.ExpectQuery("SELECT principal_amount, interest_amount, total_amount").
			WithArgs(testLoanID, 12).
			WillReturnRows(sqlmock.NewRows([]string{
				"principal_amount", "interest_amount", "total_amount", "status",
			}).AddRow("94.62", "0.95", "95.57", models.EntryPending))
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryPaid, paidAt, "pi_12", testLoanID, 12).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT due_date FROM schedule_entries").
			WithArgs(testLoanID, models.EntryPaid).
			WillReturnRows(sqlmock.NewRows([]string{"due_date"}))
		mock.ExpectExec("UPDATE funded_loans").
			WithArgs(sqlmock.AnyArg(), 12, sqlmock.AnyArg(), models.LoanCompleted, testLoanID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, events, err := service.ApplyPayment(context.Background(), testLoanID, 12, "pi_12", 1, paidAt)
		assert.NoError(t, err)
		assert.True(t, result.Completed)
		assert.Equal(t, models.LoanCompleted, result.LoanStatus)
		assert.Equal(t, "0.00", result.RemainingBalance.StringFixed(2))

		assert.Len(t, events, 4)
		assert.Equal(t, models.NotifyLoanCompleted, events[2].Type)
		assert.Equal(t, models.NotifyLoanCompleted, events[3].Type)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("caller must own loan", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanActive, "1200.00", 0))
		mock.ExpectRollback()

		_, _, err := service.ApplyPayment(context.Background(), testLoanID, 1, "pi_1", 99, paidAt)
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive loan rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanCompleted, "0.00", 12))
		mock.ExpectRollback()

		_, _, err := service.ApplyPayment(context.Background(), testLoanID, 1, "pi_1", 1, paidAt)
		assert.ErrorIs(t, err, ErrNotActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown loan", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{
				"borrower_id", "lender_id", "outstanding_balance", "status",
				"payments_completed", "total_payments_required",
			}))
		mock.ExpectRollback()

		_, _, err := service.ApplyPayment(context.Background(), "missing", 1, "pi_1", 1, paidAt)
		assert.ErrorIs(t, err, ErrLoanNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown payment number", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanActive, "1200.00", 0))
		mock.ExpectQuery("SELECT principal_amount, interest_amount, total_amount").
			WithArgs(testLoanID, 99).
			WillReturnRows(sqlmock.NewRows([]string{
				"principal_amount", "interest_amount", "total_amount", "status",
			}))
		mock.ExpectRollback()

		_, _, err := service.ApplyPayment(context.Background(), testLoanID, 99, "pi_1", 1, paidAt)
		assert.ErrorIs(t, err, ErrInvalidPayment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost update race rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT borrower_id, lender_id, outstanding_balance").
			WithArgs(testLoanID).
			WillReturnRows(loanRow(models.LoanActive, "1200.00", 0))
		mock.ExpectQuery("SELECT principal_amount, interest_amount, total_amount").
			WithArgs(testLoanID, 1).
			WillReturnRows(entryRow(models.EntryPending))
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(models.EntryPaid, paidAt, "pi_1", testLoanID, 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, _, err := service.ApplyPayment(context.Background(), testLoanID, 1, "pi_1", 1, paidAt)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConfirmPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	pg := newMockGateway()
	service := NewRepaymentService(db, pg)

	t.Run("payment not succeeded", func(t *testing.T) {
		pg.addIntent(&gateway.PaymentIntent{
			ID:     "pi_pending",
			Status: "requires_payment_method",
			Metadata: map[string]string{
				"loanId":        testLoanID,
				"paymentNumber": "1",
			},
		})

		_, _, err := service.ConfirmPayment(context.Background(), "pi_pending", 1)
		assert.ErrorIs(t, err, ErrPaymentNotSucceeded)
	})

	t.Run("missing metadata", func(t *testing.T) {
		pg.addIntent(&gateway.PaymentIntent{
			ID:       "pi_bare",
			Status:   gateway.IntentSucceeded,
			Metadata: map[string]string{},
		})

		_, _, err := service.ConfirmPayment(context.Background(), "pi_bare", 1)
		assert.ErrorIs(t, err, ErrInvalidPayment)
	})

	t.Run("unknown intent", func(t *testing.T) {
		_, _, err := service.ConfirmPayment(context.Background(), "pi_nope", 1)
		assert.Error(t, err)
	})

	_ = mock
}

func TestMarkEntryFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRepaymentService(db, newMockGateway())

	mock.ExpectExec("UPDATE transactions").
		WithArgs(models.TxnFailed, "card declined", "pi_1", models.TxnPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = service.MarkEntryFailed(context.Background(), "pi_1", "card declined")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRepaymentIntent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	pg := newMockGateway()
	service := NewRepaymentService(db, pg)

	now := time.Now()
	expectLoanFetch := func(status string) {
		mock.ExpectQuery("SELECT id, loan_request_id, borrower_id").
			WithArgs(testLoanID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "loan_request_id", "borrower_id", "lender_id", "amount",
				"interest_rate", "tenure_months", "monthly_payment", "total_repayment",
				"outstanding_balance", "status", "start_date", "end_date",
				"next_payment_date", "payments_completed", "total_payments_required",
				"platform_fee_rate", "gateway_intent_id", "created_at", "updated_at",
			}).AddRow(testLoanID, "req-1", 1, 2, "1200.00", "12.00", 12,
				"106.62", "1279.44", "1200.00", status, now, now.AddDate(1, 0, 0),
				now.AddDate(0, 1, 0), 0, 12, "0.02", "", now, now))
		mock.ExpectQuery("SELECT payment_number, due_date, principal_amount").
			WithArgs(testLoanID).
			WillReturnRows(sqlmock.NewRows([]string{
				"payment_number", "due_date", "principal_amount", "interest_amount",
				"total_amount", "status", "paid_date", "transaction_ref",
			}).AddRow(1, now.AddDate(0, 1, 0), "94.62", "12.00", "106.62",
				models.EntryPending, nil, ""))
	}

	t.Run("creates intent for next entry", func(t *testing.T) {
		expectLoanFetch(models.LoanActive)
		mock.ExpectQuery("SELECT COALESCE\\(payout_account_id, ''\\) FROM users").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"payout_account_id"}).AddRow("acct_lender"))

		intent, err := service.CreateRepaymentIntent(context.Background(), testLoanID, 1)
		assert.NoError(t, err)
		assert.Equal(t, 1, intent.PaymentNumber)
		assert.Equal(t, "106.62", intent.Amount.StringFixed(2))
		assert.Equal(t, "2.13", intent.PlatformFee.StringFixed(2))

		created := pg.created[len(pg.created)-1]
		assert.Equal(t, int64(10662), created.AmountCents)
		assert.Equal(t, int64(213), created.FeeAmountCents)
		assert.Equal(t, "acct_lender", created.DestinationAccount)
		assert.Equal(t, testLoanID, created.Metadata["loanId"])
		assert.Equal(t, "1", created.Metadata["paymentNumber"])

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner check", func(t *testing.T) {
		expectLoanFetch(models.LoanActive)

		_, err := service.CreateRepaymentIntent(context.Background(), testLoanID, 42)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("inactive loan", func(t *testing.T) {
		expectLoanFetch(models.LoanDefaulted)

		_, err := service.CreateRepaymentIntent(context.Background(), testLoanID, 1)
		assert.ErrorIs(t, err, ErrNotActive)
	})
}
