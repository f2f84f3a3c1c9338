package dto

import (
	"time"

	"github.com/noah-isme/library-lending-api/internal/models"
)

// CreateBorrowingRequest lends a copy to a student. The book is addressed by id or ISBN.
type CreateBorrowingRequest struct {
	StudentID        string     `json:"studentId" validate:"required"`
	BookID           string     `json:"bookId" validate:"required_without=ISBN"`
	ISBN             string     `json:"isbn" validate:"omitempty,max=32"`
	LendingCondition string     `json:"lendingCondition" validate:"max=255"`
	DueDate          *time.Time `json:"dueDate"`
}

// ReturnBorrowingRequest closes a borrowing.
type ReturnBorrowingRequest struct {
	ReturnCondition string `json:"returnCondition" validate:"max=255"`
}

// RenewBorrowingRequest extends a borrowing. A missing NewDueDate applies the policy extension.
type RenewBorrowingRequest struct {
	NewDueDate *time.Time `json:"newDueDate"`
}

// CreateReservationRequest queues a student for a fully checked out book.
type CreateReservationRequest struct {
	StudentID       string `json:"studentId" validate:"required"`
	BookID          string `json:"bookId" validate:"required"`
	DaysUntilExpiry *int   `json:"daysUntilExpiry" validate:"omitempty,min=1"`
}

// CheckoutReservationRequest converts an awaiting reservation into a borrowing.
type CheckoutReservationRequest struct {
	LendingCondition string `json:"lendingCondition" validate:"max=255"`
}

// ExtendReservationRequest pushes back a pickup deadline.
type ExtendReservationRequest struct {
	AdditionalDays int `json:"additionalDays" validate:"required,min=1"`
}

// AdjustCopiesRequest adds or removes physical copies of a book.
type AdjustCopiesRequest struct {
	BookID string `json:"bookId" validate:"required_without=ISBN"`
	ISBN   string `json:"isbn" validate:"omitempty,max=32"`
	Add    int    `json:"add" validate:"min=0"`
	Remove int    `json:"remove" validate:"min=0"`
}

// AdjustCopiesResult reports the new counters and any reservations promoted by added copies.
type AdjustCopiesResult struct {
	Book     models.Book          `json:"book"`
	Promoted []models.Reservation `json:"promoted"`
}

// UpsertLendingRightsRequest sets the per-book lending override.
type UpsertLendingRightsRequest struct {
	LoanDuration         int  `json:"loanDuration" validate:"required,min=1,max=365"`
	LoanExtensionAllowed bool `json:"loanExtensionAllowed"`
	ExtensionLimit       int  `json:"extensionLimit" validate:"min=0,max=52"`
	ExtensionDuration    int  `json:"extensionDuration" validate:"min=0,max=365"`
}

// StudentLendingStatus is a student with populated category and borrowing limit status.
type StudentLendingStatus struct {
	Student  models.Student     `json:"student"`
	Category *models.Category   `json:"category,omitempty"`
	Limit    models.LimitStatus `json:"limit"`
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CheckoutResult is the borrowing created by a pickup and the closed reservation.
type CheckoutResult struct {
	Borrowing   models.Borrowing   `json:"borrowing"`
	Reservation models.Reservation `json:"reservation"`
}
