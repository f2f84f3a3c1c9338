package models

import "time"

// Student is a library patron.
type Student struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email"`
	CategoryID  *string    `db:"category_id" json:"categoryId,omitempty"`
	Banned      bool       `db:"banned" json:"banned"`
	BannedUntil *time.Time `db:"banned_until" json:"bannedUntil,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsBanned reports whether the ban is in force at the given instant.
// A ban without an end date never lapses.
func (s Student) IsBanned(now time.Time) bool {
	if !s.Banned {
		return false
	}
	return s.BannedUntil == nil || s.BannedUntil.After(now)
}

// StudentDetail is a student joined with its category columns.
type StudentDetail struct {
	Student
	CategoryName                 *string `db:"category_name" json:"-"`
	CategoryBorrowingLimit       *int    `db:"category_borrowing_limit" json:"-"`
	CategoryLoanDuration         *int    `db:"category_loan_duration" json:"-"`
	CategoryLoanExtensionAllowed *bool   `db:"category_loan_extension_allowed" json:"-"`
	CategoryExtensionLimit       *int    `db:"category_extension_limit" json:"-"`
	CategoryExtensionDuration    *int    `db:"category_extension_duration" json:"-"`
}

// Category returns the populated category or nil when the student has none.
func (s *StudentDetail) Category() *Category {
	if s == nil || s.CategoryID == nil {
		return nil
	}
	category := &Category{
		ID:                   *s.CategoryID,
		BorrowingLimit:       s.CategoryBorrowingLimit,
		LoanDuration:         s.CategoryLoanDuration,
		LoanExtensionAllowed: s.CategoryLoanExtensionAllowed,
		ExtensionLimit:       s.CategoryExtensionLimit,
		ExtensionDuration:    s.CategoryExtensionDuration,
	}
	if s.CategoryName != nil {
		category.Name = *s.CategoryName
	}
	return category
}
