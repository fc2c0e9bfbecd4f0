package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
)

// fundingWindow is how long a new request stays open for funding.
const fundingWindow = 30 * 24 * time.Hour

// LoanService manages the LoanRequest lifecycle: creation, the lender-facing
// marketplace, and cancellation. Requests are mutable only while pending.
type LoanService struct {
	db *sql.DB
}

// CreateLoanRequestInput is the borrower's request payload.
type CreateLoanRequestInput struct {
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	InterestRate decimal.Decimal `json:"interestRate" validate:"required"`
	TenureMonths int             `json:"tenureMonths" validate:"required,min=1,max=60"`
	Purpose      string          `json:"purpose" validate:"required,oneof=debt_consolidation home_improvement business education medical personal other"`
	Description  string          `json:"description" validate:"required,max=500"`
}

func NewLoanService(db *sql.DB) *LoanService {
	return &LoanService{db: db}
}

// CreateLoanRequest validates terms, derives the monthly payment and total
// repayment, and stores the pending request.
func (s *LoanService) CreateLoanRequest(ctx context.Context, borrowerID int, input CreateLoanRequestInput) (*models.LoanRequest, error) {
	if err := validateTerms(input); err != nil {
		return nil, err
	}

	terms := models.LoanTerms{
		Principal:    input.Amount.Round(2),
		AnnualRate:   input.InterestRate,
		TenureMonths: input.TenureMonths,
	}

	monthlyPayment := MonthlyPayment(terms.Principal, terms.AnnualRate, terms.TenureMonths)
	totalRepayment := TotalRepayment(monthlyPayment, terms.TenureMonths)

	req := &models.LoanRequest{
		ID:              uuid.New().String(),
		BorrowerID:      borrowerID,
		Terms:           terms,
		Purpose:         input.Purpose,
		Description:     input.Description,
		Status:          models.LoanRequestPending,
		RiskGrade:       "C",
		MonthlyPayment:  monthlyPayment,
		TotalRepayment:  totalRepayment,
		FundingDeadline: time.Now().Add(fundingWindow),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loan_requests
		(id, borrower_id, amount, interest_rate, tenure_months, purpose, description,
		 status, risk_grade, monthly_payment, total_repayment, funding_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`,
		req.ID, req.BorrowerID, terms.Principal, terms.AnnualRate, terms.TenureMonths,
		req.Purpose, req.Description, req.Status, req.RiskGrade,
		req.MonthlyPayment, req.TotalRepayment, req.FundingDeadline)
	if err != nil {
		return nil, fmt.Errorf("failed to create loan request: %w", err)
	}

	return req, nil
}

// GetLoanRequest fetches one request by id.
func (s *LoanService) GetLoanRequest(ctx context.Context, requestID string) (*models.LoanRequest, error) {
	return s.scanRequest(s.db.QueryRowContext(ctx, selectRequest+` WHERE id = $1`, requestID))
}

// ListMarketplace lists pending requests still inside their funding window,
// newest first. This is the lender's browse view.
func (s *LoanService) ListMarketplace(ctx context.Context) ([]models.LoanRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRequest+` WHERE status = $1 AND funding_deadline > NOW() ORDER BY created_at DESC`,
		models.LoanRequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list marketplace: %w", err)
	}
	return s.collectRequests(rows)
}

// ListBorrowerRequests lists all of one borrower's requests.
func (s *LoanService) ListBorrowerRequests(ctx context.Context, borrowerID int) ([]models.LoanRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRequest+` WHERE borrower_id = $1 ORDER BY created_at DESC`, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return s.collectRequests(rows)
}

// CancelLoanRequest logically destroys a request. Only the owner may cancel,
// and only while the request is still pending.
func (s *LoanService) CancelLoanRequest(ctx context.Context, requestID string, borrowerID int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND borrower_id = $3 AND status = $4`,
		models.LoanRequestCancelled, requestID, borrowerID, models.LoanRequestPending)
	if err != nil {
		return fmt.Errorf("failed to cancel loan request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish "gone" from "not cancellable" for the caller.
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM loan_requests WHERE id = $1 AND borrower_id = $2`,
			requestID, borrowerID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		return ErrNotFundable
	}
	return nil
}

const selectRequest = `
	SELECT id, borrower_id, amount, interest_rate, tenure_months, purpose, description,
	       status, risk_grade, monthly_payment, total_repayment, funding_deadline, created_at, updated_at
	FROM loan_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *LoanService) scanRequest(row rowScanner) (*models.LoanRequest, error) {
	req := &models.LoanRequest{}
	err := row.Scan(&req.ID, &req.BorrowerID,
		&req.Terms.Principal, &req.Terms.AnnualRate, &req.Terms.TenureMonths,
		&req.Purpose, &req.Description, &req.Status, &req.RiskGrade,
		&req.MonthlyPayment, &req.TotalRepayment, &req.FundingDeadline,
		&req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan loan request: %w", err)
	}
	return req, nil
}

func (s *LoanService) collectRequests(rows *sql.Rows) ([]models.LoanRequest, error) {
	defer rows.Close()

	requests := []models.LoanRequest{}
	for rows.Next() {
		req, err := s.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// Platform bounds on loan terms, checked before anything reaches the
// amortization calculator.
var (
	minLoanAmount = decimal.NewFromInt(100)
	maxLoanAmount = decimal.NewFromInt(50000)
	minRate       = decimal.NewFromInt(1)
	maxRate       = decimal.NewFromInt(36)
)

func validateTerms(input CreateLoanRequestInput) error {
	if input.Amount.LessThan(minLoanAmount) || input.Amount.GreaterThan(maxLoanAmount) {
		return fmt.Errorf("loan amount must be between $100 and $50,000")
	}
	if input.InterestRate.LessThan(minRate) || input.InterestRate.GreaterThan(maxRate) {
		return fmt.Errorf("interest rate must be between 1%% and 36%%")
	}
	if input.TenureMonths < 1 || input.TenureMonths > 60 {
		return fmt.Errorf("tenure must be between 1 and 60 months")
	}
	return nil
}
