package services

import "errors"

// State-conflict and not-found errors returned by the core ledger
// operations. Handlers map these to HTTP statuses; they are expected and
// recoverable, never crashes.
var (
	// ErrNotFundable: the loan request is not pending.
	ErrNotFundable = errors.New("loan request is not available for funding")
	// ErrNotActive: the funded loan is not in active status.
	ErrNotActive = errors.New("loan is not active")
	// ErrAlreadyProcessed: duplicate payment confirmation; the sole
	// idempotency defense against duplicate webhook delivery.
	ErrAlreadyProcessed = errors.New("payment already processed")
	// ErrLoanNotFound: no funded loan for the given id.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrRequestNotFound: no loan request for the given id.
	ErrRequestNotFound = errors.New("loan request not found")
	// ErrInvalidPayment: the referenced schedule entry does not exist.
	ErrInvalidPayment = errors.New("invalid payment number")
	// ErrPaymentNotSucceeded: the gateway does not report the payment as
	// succeeded.
	ErrPaymentNotSucceeded = errors.New("payment not successful")
	// ErrNoPendingPayments: the schedule has no unpaid entries left.
	ErrNoPendingPayments = errors.New("no pending payments found")
	// ErrNotOwner: the caller does not own the referenced entity.
	ErrNotOwner = errors.New("not authorized for this loan")
	// ErrNotificationNotFound: no notification for the given id and user.
	ErrNotificationNotFound = errors.New("notification not found")
)
