package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/peerfund/backend/internal/audit"
	"github.com/peerfund/backend/internal/gateway"
	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// RepaymentService owns the loan ledger's mutating path: applying a single
// confirmed payment to a funded loan. All writers go through the same
// row-locked transaction; no component reads-modifies-writes loan fields
// outside of it.
type RepaymentService struct {
	db      *sql.DB
	gateway gateway.PaymentGateway
	audit   *audit.Logger
	feeRate decimal.Decimal // platform cut of each repayment
}

// RepaymentResult is the payload returned from a confirmed payment.
type RepaymentResult struct {
	LoanID            string          `json:"loanId"`
	PaymentNumber     int             `json:"paymentNumber"`
	Amount            decimal.Decimal `json:"amount"`
	PlatformFee       decimal.Decimal `json:"platformFee"`
	LenderAmount      decimal.Decimal `json:"lenderAmount"`
	RemainingBalance  decimal.Decimal `json:"remainingBalance"`
	PaymentsCompleted int             `json:"paymentsCompleted"`
	TotalPayments     int             `json:"totalPayments"`
	LoanStatus        string          `json:"loanStatus"`
	Completed         bool            `json:"completed"`
}

// RepaymentIntent is returned when a borrower starts paying an installment.
type RepaymentIntent struct {
	ClientSecret  string          `json:"clientSecret"`
	IntentID      string          `json:"intentId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentNumber int             `json:"paymentNumber"`
	PlatformFee   decimal.Decimal `json:"platformFee"`
}

func NewRepaymentService(db *sql.DB, pg gateway.PaymentGateway) *RepaymentService {
	viper.SetDefault("platform.repayment_fee_rate", "0.02")

	feeRate, err := decimal.NewFromString(viper.GetString("platform.repayment_fee_rate"))
	if err != nil {
		log.Printf("[REPAYMENT] Invalid repayment fee rate, using 2%%: %v", err)
		feeRate = decimal.NewFromFloat(0.02)
	}

	return &RepaymentService{
		db:      db,
		gateway: pg,
		audit:   audit.NewLogger(),
		feeRate: feeRate,
	}
}

// FeeRate exposes the configured repayment fee rate.
func (s *RepaymentService) FeeRate() decimal.Decimal {
	return s.feeRate
}

// CreateRepaymentIntent asks the gateway for a payment intent covering the
// borrower's next unpaid installment. The metadata round-trips through the
// gateway and comes back on the webhook, addressing {loan, entry}.
func (s *RepaymentService) CreateRepaymentIntent(ctx context.Context, loanID string, borrowerID int) (*RepaymentIntent, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.BorrowerID != borrowerID {
		return nil, ErrNotOwner
	}
	if loan.Status != models.LoanActive {
		return nil, ErrNotActive
	}

	next := loan.FindNextDuePayment()
	if next == nil {
		return nil, ErrNoPendingPayments
	}

	fee := PlatformFee(next.TotalAmount, s.feeRate)

	var payoutAccount string
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(payout_account_id, '') FROM users WHERE id = $1`,
		loan.LenderID).Scan(&payoutAccount); err != nil {
		return nil, fmt.Errorf("failed to resolve lender payout account: %w", err)
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.CreateIntentParams{
		AmountCents:        gateway.ToCents(next.TotalAmount),
		Currency:           "USD",
		FeeAmountCents:     gateway.ToCents(fee),
		DestinationAccount: payoutAccount,
		Metadata: map[string]string{
			"loanId":        loan.ID,
			"borrowerId":    fmt.Sprintf("%d", loan.BorrowerID),
			"lenderId":      fmt.Sprintf("%d", loan.LenderID),
			"paymentNumber": fmt.Sprintf("%d", next.PaymentNumber),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gateway intent creation failed: %w", err)
	}

	return &RepaymentIntent{
		ClientSecret:  intent.ClientSecret,
		IntentID:      intent.ID,
		Amount:        next.TotalAmount,
		PaymentNumber: next.PaymentNumber,
		PlatformFee:   fee,
	}, nil
}

// ConfirmPayment drives a repayment attempt from "gateway confirmed" to
// "ledger applied". Steps 1-3 are pure validation and safe to retry; the
// ledger mutation and its transaction record are applied as one database
// transaction. Returned notifications are pending events for the caller to
// dispatch after this function succeeds; their delivery is best-effort and
// outside the atomic unit.
//
// callerID restricts the confirmation to the loan's borrower; pass 0 for
// the webhook path, which is authenticated by signature instead.
func (s *RepaymentService) ConfirmPayment(ctx context.Context, intentID string, callerID int) (*RepaymentResult, []models.Notification, error) {
	intent, err := s.gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	if intent.Status != gateway.IntentSucceeded {
		return nil, nil, ErrPaymentNotSucceeded
	}

	loanID := intent.Metadata["loanId"]
	paymentNumber := 0
	fmt.Sscanf(intent.Metadata["paymentNumber"], "%d", &paymentNumber)
	if loanID == "" || paymentNumber == 0 {
		return nil, nil, ErrInvalidPayment
	}

	return s.ApplyPayment(ctx, loanID, paymentNumber, intentID, callerID, time.Now())
}

// ApplyPayment marks one schedule entry paid, decrements the outstanding
// balance by the entry's principal portion, advances the next-payment date,
// and creates exactly one repayment transaction record — all inside a single
// database transaction with the loan row locked. Concurrent calls against
// the same loan serialize on that lock; a duplicate for the same entry fails
// with ErrAlreadyProcessed before any mutation.
func (s *RepaymentService) ApplyPayment(ctx context.Context, loanID string, paymentNumber int, externalRef string, callerID int, paidAt time.Time) (*RepaymentResult, []models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		borrowerID, lenderID, paymentsCompleted, totalRequired int
		outstanding                                            decimal.Decimal
		status                                                 string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT borrower_id, lender_id, outstanding_balance, status, payments_completed, total_payments_required
		FROM funded_loans
		WHERE id = $1
		FOR UPDATE`, loanID).
		Scan(&borrowerID, &lenderID, &outstanding, &status, &paymentsCompleted, &totalRequired)
	if err == sql.ErrNoRows {
		return nil, nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock loan: %w", err)
	}

	if callerID != 0 && callerID != borrowerID {
		return nil, nil, ErrNotOwner
	}
	if status != models.LoanActive {
		return nil, nil, ErrNotActive
	}

	var (
		principal, interest, total decimal.Decimal
		entryStatus                string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT principal_amount, interest_amount, total_amount, status
		FROM schedule_entries
		WHERE loan_id = $1 AND payment_number = $2`, loanID, paymentNumber).
		Scan(&principal, &interest, &total, &entryStatus)
	if err == sql.ErrNoRows {
		return nil, nil, ErrInvalidPayment
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schedule entry: %w", err)
	}
	if entryStatus == models.EntryPaid {
		// Idempotency guard: duplicate webhook delivery or double confirm.
		return nil, nil, ErrAlreadyProcessed
	}

	fee := PlatformFee(total, s.feeRate)
	lenderAmount := total.Sub(fee)

	res, err := tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = $1, paid_date = $2, transaction_ref = $3
		WHERE loan_id = $4 AND payment_number = $5 AND status <> $1`,
		models.EntryPaid, paidAt, externalRef, loanID, paymentNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mark entry paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil, ErrAlreadyProcessed
	}

	newBalance := outstanding.Sub(principal)
	paymentsCompleted++

	// The loan completes only when every entry is paid; an earlier overdue
	// entry keeps it active even if the final-numbered entry clears first.
	var nextDue sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT due_date FROM schedule_entries
		WHERE loan_id = $1 AND status <> $2
		ORDER BY payment_number
		LIMIT 1`, loanID, models.EntryPaid).Scan(&nextDue)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("failed to find next due entry: %w", err)
	}

	loanStatus := models.LoanActive
	completed := false
	if !nextDue.Valid {
		loanStatus = models.LoanCompleted
		completed = true
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE funded_loans
		SET outstanding_balance = $1, payments_completed = $2, next_payment_date = $3, status = $4, updated_at = NOW()
		WHERE id = $5`,
		newBalance, paymentsCompleted, nextDue, loanStatus, loanID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update loan: %w", err)
	}

	txnID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, type, amount, currency, status, from_user_id, to_user_id, loan_id, gateway_intent_id, platform_fee, net_amount, description, processed_at, created_at)
		VALUES ($1, $2, $3, 'USD', $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`,
		txnID, models.TxnLoanRepayment, total, models.TxnCompleted,
		borrowerID, lenderID, loanID, externalRef, fee, lenderAmount,
		fmt.Sprintf("Loan repayment - Payment %d", paymentNumber), paidAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(loanID, externalRef, err)
		return nil, nil, fmt.Errorf("failed to commit repayment: %w", err)
	}

	s.audit.LogRepayment(loanID, txnID, paymentNumber, total, newBalance)

	result := &RepaymentResult{
		LoanID:            loanID,
		PaymentNumber:     paymentNumber,
		Amount:            total,
		PlatformFee:       fee,
		LenderAmount:      lenderAmount,
		RemainingBalance:  newBalance,
		PaymentsCompleted: paymentsCompleted,
		TotalPayments:     totalRequired,
		LoanStatus:        loanStatus,
		Completed:         completed,
	}

	events := []models.Notification{
		{
			UserID:      borrowerID,
			Type:        models.NotifyRepaymentReceived,
			Title:       "Payment Processed",
			Message:     fmt.Sprintf("Your payment of $%s has been processed successfully.", total.StringFixed(2)),
			Priority:    models.PriorityMedium,
			RelatedLoan: loanID,
		},
		{
			UserID:      lenderID,
			Type:        models.NotifyRepaymentReceived,
			Title:       "Payment Received",
			Message:     fmt.Sprintf("You received $%s from loan repayment.", lenderAmount.StringFixed(2)),
			Priority:    models.PriorityMedium,
			RelatedLoan: loanID,
		},
	}
	if completed {
		events = append(events,
			models.Notification{
				UserID:      borrowerID,
				Type:        models.NotifyLoanCompleted,
				Title:       "Loan Completed!",
				Message:     "Congratulations! You have successfully completed your loan.",
				Priority:    models.PriorityHigh,
				RelatedLoan: loanID,
			},
			models.Notification{
				UserID:      lenderID,
				Type:        models.NotifyLoanCompleted,
				Title:       "Investment Completed",
				Message:     "The loan you funded has been fully repaid.",
				Priority:    models.PriorityMedium,
				RelatedLoan: loanID,
			})
	}

	return result, events, nil
}

// MarkEntryFailed records a failed gateway payment against its pending
// transaction record, if one exists. No ledger mutation.
func (s *RepaymentService) MarkEntryFailed(ctx context.Context, intentID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, failure_reason = $2
		WHERE gateway_intent_id = $3 AND status = $4`,
		models.TxnFailed, reason, intentID, models.TxnPending)
	return err
}

// GetLoan loads a funded loan with its full schedule.
func (s *RepaymentService) GetLoan(ctx context.Context, loanID string) (*models.FundedLoan, error) {
	loan := &models.FundedLoan{}
	var nextPayment sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, loan_request_id, borrower_id, lender_id, amount, interest_rate, tenure_months,
		       monthly_payment, total_repayment, outstanding_balance, status,
		       start_date, end_date, next_payment_date, payments_completed, total_payments_required,
		       platform_fee_rate, COALESCE(gateway_intent_id, ''), created_at, updated_at
		FROM funded_loans
		WHERE id = $1`, loanID).
		Scan(&loan.ID, &loan.LoanRequestID, &loan.BorrowerID, &loan.LenderID,
			&loan.Terms.Principal, &loan.Terms.AnnualRate, &loan.Terms.TenureMonths,
			&loan.MonthlyPayment, &loan.TotalRepayment, &loan.OutstandingBalance, &loan.Status,
			&loan.StartDate, &loan.EndDate, &nextPayment, &loan.PaymentsCompleted, &loan.TotalPaymentsRequired,
			&loan.PlatformFeeRate, &loan.GatewayIntentID, &loan.CreatedAt, &loan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loan: %w", err)
	}
	if nextPayment.Valid {
		loan.NextPaymentDate = &nextPayment.Time
	}

	loan.Schedule, err = s.fetchSchedule(ctx, loanID)
	if err != nil {
		return nil, err
	}

	return loan, nil
}

// GetBorrowerLoans lists a borrower's active loans with schedules.
func (s *RepaymentService) GetBorrowerLoans(ctx context.Context, borrowerID int) ([]models.FundedLoan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM funded_loans
		WHERE borrower_id = $1 AND status = $2
		ORDER BY created_at DESC`, borrowerID, models.LoanActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	loans := make([]models.FundedLoan, 0, len(ids))
	for _, id := range ids {
		loan, err := s.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}
	return loans, nil
}

// History lists a borrower's repayment transactions, newest first.
func (s *RepaymentService) History(ctx context.Context, borrowerID int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount, currency, status, from_user_id, to_user_id,
		       COALESCE(loan_id, ''), COALESCE(gateway_intent_id, ''), platform_fee, net_amount,
		       COALESCE(description, ''), processed_at, created_at
		FROM transactions
		WHERE from_user_id = $1 AND type = $2
		ORDER BY created_at DESC`, borrowerID, models.TxnLoanRepayment)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var processedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.Currency, &t.Status,
			&t.FromUserID, &t.ToUserID, &t.LoanID, &t.GatewayIntentID,
			&t.PlatformFee, &t.NetAmount, &t.Description, &processedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			t.ProcessedAt = &processedAt.Time
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (s *RepaymentService) fetchSchedule(ctx context.Context, loanID string) ([]models.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_number, due_date, principal_amount, interest_amount, total_amount,
		       status, paid_date, COALESCE(transaction_ref, '')
		FROM schedule_entries
		WHERE loan_id = $1
		ORDER BY payment_number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}
	defer rows.Close()

	var schedule []models.ScheduleEntry
	for rows.Next() {
		var e models.ScheduleEntry
		var paidDate sql.NullTime
		if err := rows.Scan(&e.PaymentNumber, &e.DueDate, &e.PrincipalAmount,
			&e.InterestAmount, &e.TotalAmount, &e.Status, &paidDate, &e.TransactionRef); err != nil {
			return nil, err
		}
		if paidDate.Valid {
			e.PaidDate = &paidDate.Time
		}
		schedule = append(schedule, e)
	}
	return schedule, rows.Err()
}
