package models

import "time"

// Notification types emitted by the core.
const (
	NotifyLoanFunded        = "loan_funded"
	NotifyRepaymentDue      = "repayment_due"
	NotifyRepaymentOverdue  = "repayment_overdue"
	NotifyRepaymentReceived = "repayment_received"
	NotifyLoanCompleted     = "loan_completed"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is a one-way output of the core ledger operations. It is never
// read back by ledger logic.
type Notification struct {
	ID          int        `json:"id"`
	UserID      int        `json:"userId"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Priority    string     `json:"priority"`
	RelatedLoan string     `json:"relatedLoanId,omitempty"`
	Read        bool       `json:"read"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
