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

// FundingService turns a pending loan request into an active funded loan.
// The request status flip, the funded-loan row, its schedule entries, and
// the funding transaction record are written in one database transaction:
// a request marked funded without a loan behind it is the failure mode this
// exists to prevent.
type FundingService struct {
	db      *sql.DB
	gateway gateway.PaymentGateway
	audit   *audit.Logger
	feeRate decimal.Decimal // platform cut of the funded principal
}

// FundingIntent is returned when a lender starts funding a request.
type FundingIntent struct {
	ClientSecret string          `json:"clientSecret"`
	IntentID     string          `json:"intentId"`
	Amount       decimal.Decimal `json:"amount"`
	PlatformFee  decimal.Decimal `json:"platformFee"`
}

func NewFundingService(db *sql.DB, pg gateway.PaymentGateway) *FundingService {
	viper.SetDefault("platform.funding_fee_rate", "0.05")

	feeRate, err := decimal.NewFromString(viper.GetString("platform.funding_fee_rate"))
	if err != nil {
		log.Printf("[FUNDING] Invalid funding fee rate, using 5%%: %v", err)
		feeRate = decimal.NewFromFloat(0.05)
	}

	return &FundingService{
		db:      db,
		gateway: pg,
		audit:   audit.NewLogger(),
		feeRate: feeRate,
	}
}

// CreateFundingIntent asks the gateway for a payment intent covering the
// request's principal, with the platform fee carved out for the operator.
func (s *FundingService) CreateFundingIntent(ctx context.Context, requestID string, lenderID int) (*FundingIntent, error) {
	var (
		amount decimal.Decimal
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, status FROM loan_requests WHERE id = $1`, requestID).
		Scan(&amount, &status)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loan request: %w", err)
	}
	if status != models.LoanRequestPending {
		return nil, ErrNotFundable
	}

	fee := PlatformFee(amount, s.feeRate)

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.CreateIntentParams{
		AmountCents:    gateway.ToCents(amount),
		Currency:       "USD",
		FeeAmountCents: gateway.ToCents(fee),
		Metadata: map[string]string{
			"loanRequestId": requestID,
			"lenderId":      fmt.Sprintf("%d", lenderID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gateway intent creation failed: %w", err)
	}

	return &FundingIntent{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		Amount:       amount,
		PlatformFee:  fee,
	}, nil
}

// FundLoan executes the funding transition after the lender's payment has
// succeeded at the gateway. It verifies the payment, locks the request row,
// snapshots the terms, generates the amortization schedule anchored at now,
// and records the funding transaction — atomically.
func (s *FundingService) FundLoan(ctx context.Context, requestID string, lenderID int, intentID string) (*models.FundedLoan, []models.Notification, error) {
	intent, err := s.gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	if intent.Status != gateway.IntentSucceeded {
		return nil, nil, ErrPaymentNotSucceeded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		borrowerID     int
		terms          models.LoanTerms
		monthlyPayment decimal.Decimal
		totalRepayment decimal.Decimal
		status         string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT borrower_id, amount, interest_rate, tenure_months, monthly_payment, total_repayment, status
		FROM loan_requests
		WHERE id = $1
		FOR UPDATE`, requestID).
		Scan(&borrowerID, &terms.Principal, &terms.AnnualRate, &terms.TenureMonths,
			&monthlyPayment, &totalRepayment, &status)
	if err == sql.ErrNoRows {
		return nil, nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock loan request: %w", err)
	}
	if status != models.LoanRequestPending {
		return nil, nil, ErrNotFundable
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE loan_requests SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.LoanRequestFunded, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update loan request: %w", err)
	}

	startDate := time.Now()
	endDate := startDate.AddDate(0, terms.TenureMonths, 0)
	schedule := GenerateSchedule(terms, monthlyPayment, startDate)
	nextPaymentDate := schedule[0].DueDate

	loanID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO funded_loans
		(id, loan_request_id, borrower_id, lender_id, amount, interest_rate, tenure_months,
		 monthly_payment, total_repayment, outstanding_balance, status,
		 start_date, end_date, next_payment_date, payments_completed, total_payments_required,
		 platform_fee_rate, gateway_intent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, $16, $17, NOW(), NOW())`,
		loanID, requestID, borrowerID, lenderID,
		terms.Principal, terms.AnnualRate, terms.TenureMonths,
		monthlyPayment, totalRepayment, terms.Principal, models.LoanActive,
		startDate, endDate, nextPaymentDate, terms.TenureMonths,
		s.feeRate, intentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create funded loan: %w", err)
	}

	for _, entry := range schedule {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO schedule_entries
			(loan_id, payment_number, due_date, principal_amount, interest_amount, total_amount, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			loanID, entry.PaymentNumber, entry.DueDate,
			entry.PrincipalAmount, entry.InterestAmount, entry.TotalAmount, entry.Status)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create schedule entry %d: %w", entry.PaymentNumber, err)
		}
	}

	fee := PlatformFee(terms.Principal, s.feeRate)
	netAmount := terms.Principal.Sub(fee)

	txnID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, type, amount, currency, status, from_user_id, to_user_id, loan_id, gateway_intent_id, platform_fee, net_amount, description, processed_at, created_at)
		VALUES ($1, $2, $3, 'USD', $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`,
		txnID, models.TxnLoanFunding, terms.Principal, models.TxnCompleted,
		lenderID, borrowerID, loanID, intentID, fee, netAmount,
		"Loan funding")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create funding transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(loanID, txnID, err)
		return nil, nil, fmt.Errorf("failed to commit funding: %w", err)
	}

	s.audit.LogFunding(loanID, txnID, terms.Principal, lenderID, borrowerID)

	loan := &models.FundedLoan{
		ID:                    loanID,
		LoanRequestID:         requestID,
		BorrowerID:            borrowerID,
		LenderID:              lenderID,
		Terms:                 terms,
		MonthlyPayment:        monthlyPayment,
		TotalRepayment:        totalRepayment,
		OutstandingBalance:    terms.Principal,
		Status:                models.LoanActive,
		StartDate:             startDate,
		EndDate:               endDate,
		NextPaymentDate:       &nextPaymentDate,
		TotalPaymentsRequired: terms.TenureMonths,
		PlatformFeeRate:       s.feeRate,
		GatewayIntentID:       intentID,
		Schedule:              schedule,
	}

	events := []models.Notification{
		{
			UserID:      borrowerID,
			Type:        models.NotifyLoanFunded,
			Title:       "Loan Funded Successfully!",
			Message:     fmt.Sprintf("Your loan request for $%s has been funded.", terms.Principal.StringFixed(2)),
			Priority:    models.PriorityHigh,
			RelatedLoan: loanID,
		},
		{
			UserID:      lenderID,
			Type:        models.NotifyLoanFunded,
			Title:       "Investment Confirmed",
			Message:     fmt.Sprintf("You have successfully funded a loan for $%s.", terms.Principal.StringFixed(2)),
			Priority:    models.PriorityMedium,
			RelatedLoan: loanID,
		},
	}

	return loan, events, nil
}
