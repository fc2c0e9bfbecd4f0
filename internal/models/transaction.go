package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Every balance-affecting ledger mutation is paired with
// exactly one transaction record of matching type and amount.
const (
	TxnLoanFunding   = "loan_funding"
	TxnLoanRepayment = "loan_repayment"
	TxnPlatformFee   = "platform_fee"
	TxnLenderPayout  = "lender_payout"
)

// Transaction statuses.
const (
	TxnPending   = "pending"
	TxnCompleted = "completed"
	TxnFailed    = "failed"
	TxnCancelled = "cancelled"
)

// Transaction is an append-only ledger record. After creation only status and
// failure_reason change, and only on the payment-processing path.
type Transaction struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	FromUserID      int             `json:"fromUserId"`
	ToUserID        int             `json:"toUserId"`
	LoanID          string          `json:"loanId,omitempty"` // weak reference to FundedLoan
	GatewayIntentID string          `json:"gatewayIntentId,omitempty"`
	PlatformFee     decimal.Decimal `json:"platformFee"`
	NetAmount       decimal.Decimal `json:"netAmount"`
	Description     string          `json:"description,omitempty"`
	FailureReason   string          `json:"failureReason,omitempty"`
	ProcessedAt     *time.Time      `json:"processedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}
