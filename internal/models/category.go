package models

// Category is a student category carrying the default lending policy for its members.
// Policy columns are nullable; a category missing any of them does not define a policy.
type Category struct {
	ID                   string `db:"id" json:"id"`
	Name                 string `db:"name" json:"name"`
	BorrowingLimit       *int   `db:"borrowing_limit" json:"borrowingLimit,omitempty"`
	LoanDuration         *int   `db:"loan_duration" json:"loanDuration,omitempty"`
	LoanExtensionAllowed *bool  `db:"loan_extension_allowed" json:"loanExtensionAllowed,omitempty"`
	ExtensionLimit       *int   `db:"extension_limit" json:"extensionLimit,omitempty"`
	ExtensionDuration    *int   `db:"extension_duration" json:"extensionDuration,omitempty"`
}

// HasPolicy reports whether all four loan policy fields are present.
func (c *Category) HasPolicy() bool {
	if c == nil {
		return false
	}
	return c.LoanDuration != nil && c.LoanExtensionAllowed != nil && c.ExtensionLimit != nil && c.ExtensionDuration != nil
}
