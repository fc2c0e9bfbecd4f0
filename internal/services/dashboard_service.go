package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/peerfund/backend/internal/models"
	"github.com/shopspring/decimal"
)

// DashboardService aggregates portfolio figures for the two user roles. All
// queries are read-only.
type DashboardService struct {
	db *sql.DB
}

// BorrowerDashboard summarizes a borrower's obligations.
type BorrowerDashboard struct {
	ActiveLoans      int              `json:"activeLoans"`
	CompletedLoans   int              `json:"completedLoans"`
	TotalBorrowed    decimal.Decimal  `json:"totalBorrowed"`
	TotalOutstanding decimal.Decimal  `json:"totalOutstanding"`
	TotalRepaid      decimal.Decimal  `json:"totalRepaid"`
	OverdueEntries   int              `json:"overdueEntries"`
	NextPaymentDate  *time.Time       `json:"nextPaymentDate,omitempty"`
	NextPaymentTotal *decimal.Decimal `json:"nextPaymentAmount,omitempty"`
	PendingRequests  int              `json:"pendingRequests"`
}

// LenderDashboard summarizes a lender's investments.
type LenderDashboard struct {
	ActiveLoans       int             `json:"activeLoans"`
	CompletedLoans    int             `json:"completedLoans"`
	TotalInvested     decimal.Decimal `json:"totalInvested"`
	TotalOutstanding  decimal.Decimal `json:"totalOutstanding"`
	TotalReceived     decimal.Decimal `json:"totalReceived"`
	ExpectedRepayment decimal.Decimal `json:"expectedRepayment"`
	LoansWithOverdue  int             `json:"loansWithOverdue"`
}

func NewDashboardService(db *sql.DB) *DashboardService {
	return &DashboardService{db: db}
}

func (s *DashboardService) BorrowerDashboard(ctx context.Context, borrowerID int) (*BorrowerDashboard, error) {
	d := &BorrowerDashboard{
		TotalBorrowed:    decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalRepaid:      decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(outstanding_balance) FILTER (WHERE status = $2), 0)
		FROM funded_loans
		WHERE borrower_id = $1`,
		borrowerID, models.LoanActive, models.LoanCompleted).
		Scan(&d.ActiveLoans, &d.CompletedLoans, &d.TotalBorrowed, &d.TotalOutstanding)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate loans: %w", err)
	}
	d.TotalRepaid = d.TotalBorrowed.Sub(d.TotalOutstanding)

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM schedule_entries se
		JOIN funded_loans fl ON fl.id = se.loan_id
		WHERE fl.borrower_id = $1 AND fl.status = $2 AND se.status = $3`,
		borrowerID, models.LoanActive, models.EntryOverdue).
		Scan(&d.OverdueEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue entries: %w", err)
	}

	var nextDate time.Time
	var nextAmount decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT se.due_date, se.total_amount
		FROM schedule_entries se
		JOIN funded_loans fl ON fl.id = se.loan_id
		WHERE fl.borrower_id = $1 AND fl.status = $2 AND se.status <> $3
		ORDER BY se.due_date
		LIMIT 1`,
		borrowerID, models.LoanActive, models.EntryPaid).
		Scan(&nextDate, &nextAmount)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to find next payment: %w", err)
	}
	if err == nil {
		d.NextPaymentDate = &nextDate
		d.NextPaymentTotal = &nextAmount
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loan_requests WHERE borrower_id = $1 AND status = $2`,
		borrowerID, models.LoanRequestPending).
		Scan(&d.PendingRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending requests: %w", err)
	}

	return d, nil
}

func (s *DashboardService) LenderDashboard(ctx context.Context, lenderID int) (*LenderDashboard, error) {
	d := &LenderDashboard{
		TotalInvested:     decimal.Zero,
		TotalOutstanding:  decimal.Zero,
		TotalReceived:     decimal.Zero,
		ExpectedRepayment: decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(outstanding_balance) FILTER (WHERE status = $2), 0),
			COALESCE(SUM(total_repayment), 0)
		FROM funded_loans
		WHERE lender_id = $1`,
		lenderID, models.LoanActive, models.LoanCompleted).
		Scan(&d.ActiveLoans, &d.CompletedLoans, &d.TotalInvested,
			&d.TotalOutstanding, &d.ExpectedRepayment)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate investments: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(net_amount), 0)
		FROM transactions
		WHERE to_user_id = $1 AND type = $2 AND status = $3`,
		lenderID, models.TxnLoanRepayment, models.TxnCompleted).
		Scan(&d.TotalReceived)
	if err != nil {
		return nil, fmt.Errorf("failed to sum repayments received: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT fl.id)
		FROM schedule_entries se
		JOIN funded_loans fl ON fl.id = se.loan_id
		WHERE fl.lender_id = $1 AND fl.status = $2 AND se.status = $3`,
		lenderID, models.LoanActive, models.EntryOverdue).
		Scan(&d.LoansWithOverdue)
	if err != nil {
		return nil, fmt.Errorf("failed to count loans with overdue entries: %w", err)
	}

	return d, nil
}
