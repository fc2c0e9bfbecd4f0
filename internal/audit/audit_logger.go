package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	EventType string          `json:"event_type"`
	LoanID    string          `json:"loan_id"`
	TxnID     string          `json:"transaction_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Details   any             `json:"details,omitempty"`
}

// Logger records every balance-affecting ledger mutation.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogFunding records the funding of a loan request.
func (a *Logger) LogFunding(loanID, txnID string, amount decimal.Decimal, lenderID, borrowerID int) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "FUNDING",
		LoanID:    loanID,
		TxnID:     txnID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]int{
			"lender_id":   lenderID,
			"borrower_id": borrowerID,
		},
	})
}

// LogRepayment records one installment applied against a loan.
func (a *Logger) LogRepayment(loanID, txnID string, paymentNumber int, amount, remaining decimal.Decimal) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "REPAYMENT",
		LoanID:    loanID,
		TxnID:     txnID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]string{
			"payment_number":    decimal.NewFromInt(int64(paymentNumber)).String(),
			"remaining_balance": remaining.StringFixed(2),
		},
	})
}

// LogError records a failed mutation attempt.
func (a *Logger) LogError(loanID, txnID string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		LoanID:    loanID,
		TxnID:     txnID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
