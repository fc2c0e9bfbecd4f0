package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/peerfund/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestExportLenderPayouts(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("builds pacs.008 for completed repayments", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db)

		mock.ExpectQuery("SELECT t.id, t.loan_id, t.to_user_id, t.net_amount").
			WithArgs(models.TxnLoanRepayment, models.TxnCompleted, since).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "loan_id", "to_user_id", "net_amount", "payout_account_id", "name",
			}).
				AddRow("txn-1", testLoanID, 2, "104.49", "acct_lender_1", "Ada Lender").
				AddRow("txn-2", testLoanID, 2, "104.49", "acct_lender_1", "Ada Lender"))

		export, err := service.ExportLenderPayouts(context.Background(), since)
		assert.NoError(t, err)
		assert.Equal(t, "pacs.008.001.08", export.MessageType)
		assert.Equal(t, 2, export.TxnCount)
		assert.Equal(t, "208.98", export.TotalAmount.StringFixed(2))
		assert.True(t, strings.HasPrefix(export.XML, "<?xml"))
		assert.Contains(t, export.XML, "<SttlmMtd>CLRG</SttlmMtd>")
		assert.Contains(t, export.XML, "<NbOfTxs>2</NbOfTxs>")
		assert.Contains(t, export.XML, "Ada Lender")
		assert.Contains(t, export.XML, "acct_lender_1")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to export", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db)

		mock.ExpectQuery("SELECT t.id, t.loan_id, t.to_user_id, t.net_amount").
			WithArgs(models.TxnLoanRepayment, models.TxnCompleted, since).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "loan_id", "to_user_id", "net_amount", "payout_account_id", "name",
			}))

		_, err = service.ExportLenderPayouts(context.Background(), since)
		assert.ErrorIs(t, err, ErrNoPendingPayments)
	})
}

func TestAcknowledgeTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSettlementService(db)

	t.Run("builds pacs.002 status report", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(loan_id, ''\\) FROM transactions").
			WithArgs("txn-1").
			WillReturnRows(sqlmock.NewRows([]string{"loan_id"}).AddRow(testLoanID))

		export, err := service.AcknowledgeTransaction(context.Background(), "txn-1", "ACCP")
		assert.NoError(t, err)
		assert.Equal(t, "pacs.002.001.08", export.MessageType)
		assert.Contains(t, export.XML, "<TxSts>ACCP</TxSts>")
		assert.Contains(t, export.XML, "txn-1")
	})

	t.Run("unknown transaction", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(loan_id, ''\\) FROM transactions").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"loan_id"}))

		_, err := service.AcknowledgeTransaction(context.Background(), "missing", "ACCP")
		assert.ErrorIs(t, err, ErrLoanNotFound)
	})
}
