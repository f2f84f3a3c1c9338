package models

import "time"

// BookLendingRights overrides the category policy for a single book.
type BookLendingRights struct {
	ID                   string    `db:"id" json:"id"`
	BookID               string    `db:"book_id" json:"bookId"`
	LoanDuration         int       `db:"loan_duration" json:"loanDuration"`
	LoanExtensionAllowed bool      `db:"loan_extension_allowed" json:"loanExtensionAllowed"`
	ExtensionLimit       int       `db:"extension_limit" json:"extensionLimit"`
	ExtensionDuration    int       `db:"extension_duration" json:"extensionDuration"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}
