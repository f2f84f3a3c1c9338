package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-lending-api/internal/models"
)

const borrowingDetailSelect = `SELECT br.id, br.student_id, br.book_id, br.reservation_id, br.borrow_date, br.due_date, br.status, br.extension_count,
        br.lending_condition, br.return_condition, br.return_date, br.created_at, br.updated_at,
        s.name AS student_name, b.title AS book_title, b.isbn AS book_isbn`

// BorrowingRepository serves borrowing queries and the overdue sweep.
type BorrowingRepository struct {
	db *sqlx.DB
}

// NewBorrowingRepository constructs a BorrowingRepository.
func NewBorrowingRepository(db *sqlx.DB) *BorrowingRepository {
	return &BorrowingRepository{db: db}
}

func borrowingConditions(filter models.BorrowingFilter) (string, []interface{}) {
	var args []interface{}
	conditions := []string{"1=1"}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("br.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("br.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("br.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.OverdueOnly {
		conditions = append(conditions, fmt.Sprintf("br.status = $%d", len(args)+1))
		args = append(args, models.BorrowingStatusOverdue)
	}
	base := "FROM borrowings br JOIN students s ON s.id = br.student_id JOIN books b ON b.id = br.book_id WHERE " + strings.Join(conditions, " AND ")
	return base, args
}

func borrowingOrder(filter models.BorrowingFilter) string {
	allowedSorts := map[string]string{
		"borrow_date": "br.borrow_date",
		"due_date":    "br.due_date",
		"created_at":  "br.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "br.borrow_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return column + " " + order
}

// List returns borrowings matching the filter with the total count.
func (r *BorrowingRepository) List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, int, error) {
	base, args := borrowingConditions(filter)
	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s %s ORDER BY %s LIMIT %d OFFSET %d", borrowingDetailSelect, base, borrowingOrder(filter), size, (page-1)*size)

	var items []models.BorrowingDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count borrowings: %w", err)
	}
	return items, total, nil
}

// ListForExport returns every borrowing matching the filter without pagination.
func (r *BorrowingRepository) ListForExport(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, error) {
	base, args := borrowingConditions(filter)
	query := fmt.Sprintf("%s %s ORDER BY %s", borrowingDetailSelect, base, borrowingOrder(filter))
	var items []models.BorrowingDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("export borrowings: %w", err)
	}
	return items, nil
}

// FindDetailByID fetches a borrowing with student and book names.
func (r *BorrowingRepository) FindDetailByID(ctx context.Context, id string) (*models.BorrowingDetail, error) {
	query := borrowingDetailSelect + ` FROM borrowings br JOIN students s ON s.id = br.student_id JOIN books b ON b.id = br.book_id WHERE br.id = $1`
	var detail models.BorrowingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CountOpenByStudent counts a student's Active and Overdue borrowings.
func (r *BorrowingRepository) CountOpenByStudent(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM borrowings WHERE student_id = $1 AND status IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, models.BorrowingStatusActive, models.BorrowingStatusOverdue); err != nil {
		return 0, fmt.Errorf("count open borrowings: %w", err)
	}
	return count, nil
}

// MarkOverdue flips up to limit Active borrowings due before now to Overdue and returns them.
// Rows already Overdue are untouched, so repeated runs change nothing.
func (r *BorrowingRepository) MarkOverdue(ctx context.Context, now time.Time, limit int) ([]models.Borrowing, error) {
	query := `UPDATE borrowings SET status = $1, updated_at = $2
        WHERE id IN (
            SELECT id FROM borrowings WHERE status = $3 AND due_date < $2 ORDER BY due_date ASC LIMIT $4 FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + borrowingColumns
	var items []models.Borrowing
	if err := r.db.SelectContext(ctx, &items, query, models.BorrowingStatusOverdue, now, models.BorrowingStatusActive, limit); err != nil {
		return nil, fmt.Errorf("mark overdue borrowings: %w", err)
	}
	return items, nil
}
