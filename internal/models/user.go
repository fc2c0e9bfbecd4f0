package models

import "time"

// Roles a platform user can hold.
const (
	RoleBorrower = "borrower"
	RoleLender   = "lender"
)

type User struct {
	ID              int        `json:"id" example:"1"`                   // User ID
	Email           string     `json:"email" example:"user@example.com"` // User email
	FirstName       string     `json:"firstName" example:"Jane"`         // User first name
	LastName        string     `json:"lastName" example:"Doe"`           // User last name
	Role            string     `json:"role" example:"borrower"`          // borrower or lender
	PayoutAccountID string     `json:"payoutAccountId,omitempty"`        // Gateway destination account (lenders)
	EmailVerified   bool       `json:"emailVerified"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
