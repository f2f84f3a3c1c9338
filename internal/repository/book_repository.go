package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-lending-api/internal/models"
)

// BookRepository serves catalog reads. Copy counters are written only through LendingStore.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs a BookRepository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns books matching the provided filters.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	base := "FROM books b"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(b.title) LIKE $%d OR LOWER(b.author) LIKE $%d OR b.isbn LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Available != nil {
		if *filter.Available {
			conditions = append(conditions, "b.available_copies > 0")
		} else {
			conditions = append(conditions, "b.available_copies = 0")
		}
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"title":      "b.title",
		"author":     "b.author",
		"created_at": "b.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "b.title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT b.id, b.title, b.author, b.isbn, b.call_number, b.keywords, b.total_copies, b.available_copies, b.created_at, b.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, (page-1)*size)

	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindByID fetches a single book.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByISBN fetches a book by its ISBN.
func (r *BookRepository) FindByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, isbn); err != nil {
		return nil, err
	}
	return &book, nil
}

// FindDetailByID fetches a book with its open borrowing count, queue length and lending rights flag.
func (r *BookRepository) FindDetailByID(ctx context.Context, id string) (*models.BookDetail, error) {
	const query = `SELECT b.id, b.title, b.author, b.isbn, b.call_number, b.keywords, b.total_copies, b.available_copies, b.created_at, b.updated_at,
        (SELECT COUNT(*) FROM borrowings br WHERE br.book_id = b.id AND br.status IN ($2, $3)) AS open_borrowings,
        (SELECT COUNT(*) FROM reservations rv WHERE rv.book_id = b.id AND rv.status IN ($4, $5)) AS queue_length,
        EXISTS (SELECT 1 FROM book_lending_rights lr WHERE lr.book_id = b.id) AS has_lending_rights
        FROM books b
        WHERE b.id = $1`
	var detail models.BookDetail
	if err := r.db.GetContext(ctx, &detail, query, id,
		models.BorrowingStatusActive, models.BorrowingStatusOverdue,
		models.ReservationStatusHeld, models.ReservationStatusAwaitingPickup); err != nil {
		return nil, err
	}
	return &detail, nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
