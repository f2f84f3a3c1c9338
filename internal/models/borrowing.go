package models

import "time"

// BorrowingStatus represents the lifecycle of a loan.
type BorrowingStatus string

// Possible borrowing statuses.
const (
	BorrowingStatusActive   BorrowingStatus = "ACTIVE"
	BorrowingStatusOverdue  BorrowingStatus = "OVERDUE"
	BorrowingStatusReturned BorrowingStatus = "RETURNED"
)

// Borrowing is a loan of one copy of a book to a student.
type Borrowing struct {
	ID               string          `db:"id" json:"id"`
	StudentID        string          `db:"student_id" json:"studentId"`
	BookID           string          `db:"book_id" json:"bookId"`
	ReservationID    *string         `db:"reservation_id" json:"reservationId,omitempty"`
	BorrowDate       time.Time       `db:"borrow_date" json:"borrowDate"`
	DueDate          time.Time       `db:"due_date" json:"dueDate"`
	Status           BorrowingStatus `db:"status" json:"status"`
	ExtensionCount   int             `db:"extension_count" json:"extensionCount"`
	LendingCondition string          `db:"lending_condition" json:"lendingCondition"`
	ReturnCondition  *string         `db:"return_condition" json:"returnCondition,omitempty"`
	ReturnDate       *time.Time      `db:"return_date" json:"returnDate,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsOpen reports whether the borrowing still holds a copy.
func (b Borrowing) IsOpen() bool {
	return b.Status == BorrowingStatusActive || b.Status == BorrowingStatusOverdue
}

// BorrowingDetail enriches a borrowing with student and book names.
type BorrowingDetail struct {
	Borrowing
	StudentName string `db:"student_name" json:"studentName"`
	BookTitle   string `db:"book_title" json:"bookTitle"`
	BookISBN    string `db:"book_isbn" json:"bookIsbn"`
}

// BorrowingFilter provides filters for listing borrowings.
type BorrowingFilter struct {
	StudentID   string
	BookID      string
	Status      BorrowingStatus
	OverdueOnly bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
