package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanRequest lifecycle statuses.
const (
	LoanRequestPending   = "pending"
	LoanRequestApproved  = "approved"
	LoanRequestFunded    = "funded"
	LoanRequestRejected  = "rejected"
	LoanRequestCancelled = "cancelled"
)

// FundedLoan statuses.
const (
	LoanActive    = "active"
	LoanCompleted = "completed"
	LoanDefaulted = "defaulted"
	LoanCancelled = "cancelled"
)

// ScheduleEntry statuses.
const (
	EntryPending = "pending"
	EntryPaid    = "paid"
	EntryOverdue = "overdue"
)

// LoanPurposes accepted on a loan request.
var LoanPurposes = []string{
	"debt_consolidation",
	"home_improvement",
	"business",
	"education",
	"medical",
	"personal",
	"other",
}

// LoanTerms is the immutable value object a request is priced on.
type LoanTerms struct {
	Principal    decimal.Decimal `json:"principal"`    // USD, 2dp
	AnnualRate   decimal.Decimal `json:"annualRate"`   // percent, 1-36
	TenureMonths int             `json:"tenureMonths"` // 1-60
}

type LoanRequest struct {
	ID              string          `json:"id"`
	BorrowerID      int             `json:"borrowerId"`
	Terms           LoanTerms       `json:"terms"`
	Purpose         string          `json:"purpose"`
	Description     string          `json:"description"`
	Status          string          `json:"status"`
	RiskGrade       string          `json:"riskGrade"` // A-E
	MonthlyPayment  decimal.Decimal `json:"monthlyPayment"`
	TotalRepayment  decimal.Decimal `json:"totalRepayment"`
	FundingDeadline time.Time       `json:"fundingDeadline"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ScheduleEntry is one installment in a funded loan's amortization table.
// Entries are 1-indexed and exclusively owned by their FundedLoan.
type ScheduleEntry struct {
	PaymentNumber   int             `json:"paymentNumber"`
	DueDate         time.Time       `json:"dueDate"`
	PrincipalAmount decimal.Decimal `json:"principalAmount"`
	InterestAmount  decimal.Decimal `json:"interestAmount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          string          `json:"status"`
	PaidDate        *time.Time      `json:"paidDate,omitempty"`
	TransactionRef  string          `json:"transactionRef,omitempty"` // external payment reference
}

type FundedLoan struct {
	ID                    string          `json:"id"`
	LoanRequestID         string          `json:"loanRequestId"`
	BorrowerID            int             `json:"borrowerId"`
	LenderID              int             `json:"lenderId"`
	Terms                 LoanTerms       `json:"terms"` // snapshot at funding time
	MonthlyPayment        decimal.Decimal `json:"monthlyPayment"`
	TotalRepayment        decimal.Decimal `json:"totalRepayment"`
	OutstandingBalance    decimal.Decimal `json:"outstandingBalance"`
	Status                string          `json:"status"`
	StartDate             time.Time       `json:"startDate"`
	EndDate               time.Time       `json:"endDate"`
	NextPaymentDate       *time.Time      `json:"nextPaymentDate"` // nil once completed
	PaymentsCompleted     int             `json:"paymentsCompleted"`
	TotalPaymentsRequired int             `json:"totalPaymentsRequired"`
	PlatformFeeRate       decimal.Decimal `json:"platformFeeRate"`
	GatewayIntentID       string          `json:"gatewayIntentId,omitempty"`
	Schedule              []ScheduleEntry `json:"repaymentSchedule,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// FindNextDuePayment returns the lowest-numbered entry still owed (pending or
// overdue), or nil when the schedule is fully settled. Read-only.
func (l *FundedLoan) FindNextDuePayment() *ScheduleEntry {
	for i := range l.Schedule {
		if l.Schedule[i].Status == EntryPending || l.Schedule[i].Status == EntryOverdue {
			return &l.Schedule[i]
		}
	}
	return nil
}

// RemainingPayments counts entries not yet paid.
func (l *FundedLoan) RemainingPayments() int {
	n := 0
	for i := range l.Schedule {
		if l.Schedule[i].Status != EntryPaid {
			n++
		}
	}
	return n
}

// TotalPaid is the principal repaid so far.
func (l *FundedLoan) TotalPaid() decimal.Decimal {
	return l.Terms.Principal.Sub(l.OutstandingBalance)
}
