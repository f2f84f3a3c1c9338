package models

import (
	"time"

	"github.com/lib/pq"
)

// Book is a catalog title with its copy counters.
type Book struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	Author          string         `db:"author" json:"author"`
	ISBN            string         `db:"isbn" json:"isbn"`
	CallNumber      string         `db:"call_number" json:"callNumber"`
	Keywords        pq.StringArray `db:"keywords" json:"keywords"`
	TotalCopies     int            `db:"total_copies" json:"totalCopies"`
	AvailableCopies int            `db:"available_copies" json:"availableCopies"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// BookDetail enriches a book with lending context.
type BookDetail struct {
	Book
	OpenBorrowings   int  `db:"open_borrowings" json:"openBorrowings"`
	QueueLength      int  `db:"queue_length" json:"queueLength"`
	HasLendingRights bool `db:"has_lending_rights" json:"hasLendingRights"`
}

// BookFilter encapsulates catalog search parameters.
type BookFilter struct {
	Search    string
	Available *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
