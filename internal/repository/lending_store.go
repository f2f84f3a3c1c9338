package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-lending-api/internal/models"
)

const (
	bookColumns        = `id, title, author, isbn, call_number, keywords, total_copies, available_copies, created_at, updated_at`
	borrowingColumns   = `id, student_id, book_id, reservation_id, borrow_date, due_date, status, extension_count, lending_condition, return_condition, return_date, created_at, updated_at`
	reservationColumns = `id, student_id, book_id, status, pickup_deadline, current_borrower_id, cancel_reason, borrowing_id, created_at, updated_at`
	rightsColumns      = `id, book_id, loan_duration, loan_extension_allowed, extension_limit, extension_duration, created_at, updated_at`
	studentDetailQuery = `SELECT s.id, s.name, s.email, s.category_id, s.banned, s.banned_until, s.created_at, s.updated_at,
        c.name AS category_name, c.borrowing_limit AS category_borrowing_limit, c.loan_duration AS category_loan_duration,
        c.loan_extension_allowed AS category_loan_extension_allowed, c.extension_limit AS category_extension_limit,
        c.extension_duration AS category_extension_duration
        FROM students s
        LEFT JOIN categories c ON c.id = s.category_id
        WHERE s.id = $1`
)

// LendingTx is the set of reads and writes that lending workflows perform inside one
// database transaction. Row locks taken through it are held until the transaction ends.
// Workflows lock in the order book, student, then borrowing or reservation rows.
type LendingTx interface {
	LockBook(ctx context.Context, id string) (*models.Book, error)
	LockBookByISBN(ctx context.Context, isbn string) (*models.Book, error)
	LockStudent(ctx context.Context, id string) (*models.StudentDetail, error)
	FindStudent(ctx context.Context, id string) (*models.StudentDetail, error)
	FindLendingRights(ctx context.Context, bookID string) (*models.BookLendingRights, error)

	TakeCopy(ctx context.Context, bookID string) (bool, error)
	ReleaseCopy(ctx context.Context, bookID string) error
	SetCopies(ctx context.Context, bookID string, total, available int) error

	CountOpenBorrowings(ctx context.Context, studentID string) (int, error)
	CountOpenBorrowingsForBook(ctx context.Context, bookID string) (int, error)
	HasOpenBorrowing(ctx context.Context, studentID, bookID string) (bool, error)
	EarliestDueBorrower(ctx context.Context, bookID string) (*string, error)
	CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error
	FindBorrowing(ctx context.Context, id string) (*models.Borrowing, error)
	LockBorrowing(ctx context.Context, id string) (*models.Borrowing, error)
	MarkBorrowingReturned(ctx context.Context, id, returnCondition string, returnedAt time.Time) error
	UpdateBorrowingDueDate(ctx context.Context, id string, dueDate time.Time, extensionCount int, status models.BorrowingStatus) error

	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	FindReservation(ctx context.Context, id string) (*models.Reservation, error)
	LockReservation(ctx context.Context, id string) (*models.Reservation, error)
	NextHeldReservation(ctx context.Context, bookID string) (*models.Reservation, error)
	CountOpenReservations(ctx context.Context, bookID string) (int, error)
	CountAwaitingPickup(ctx context.Context, bookID string) (int, error)
	HasOpenReservation(ctx context.Context, studentID, bookID string) (bool, error)
	UpdateReservation(ctx context.Context, reservation *models.Reservation) error
	DeleteReservation(ctx context.Context, id string) error
	AppendReservationEvent(ctx context.Context, event *models.ReservationEvent) error
}

// LendingStore opens transactions for lending workflows.
type LendingStore struct {
	db *sqlx.DB
}

// NewLendingStore constructs the store.
func NewLendingStore(db *sqlx.DB) *LendingStore {
	return &LendingStore{db: db}
}

// WithinTx runs fn inside a transaction, committing when fn returns nil and rolling back otherwise.
func (s *LendingStore) WithinTx(ctx context.Context, fn func(LendingTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lending transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&lendingTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit lending transaction: %w", err)
	}
	return nil
}

type lendingTx struct {
	tx *sqlx.Tx
}

func (t *lendingTx) LockBook(ctx context.Context, id string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 FOR UPDATE`
	var book models.Book
	if err := t.tx.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

func (t *lendingTx) LockBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1 FOR UPDATE`
	var book models.Book
	if err := t.tx.GetContext(ctx, &book, query, isbn); err != nil {
		return nil, err
	}
	return &book, nil
}

func (t *lendingTx) LockStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := t.tx.GetContext(ctx, &student, studentDetailQuery+` FOR UPDATE OF s`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

func (t *lendingTx) FindStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := t.tx.GetContext(ctx, &student, studentDetailQuery, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindLendingRights returns nil without error when the book has no override.
func (t *lendingTx) FindLendingRights(ctx context.Context, bookID string) (*models.BookLendingRights, error) {
	query := `SELECT ` + rightsColumns + ` FROM book_lending_rights WHERE book_id = $1`
	var rights models.BookLendingRights
	if err := t.tx.GetContext(ctx, &rights, query, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find lending rights: %w", err)
	}
	return &rights, nil
}

// TakeCopy decrements available copies only when one is left. It reports false when none was.
func (t *lendingTx) TakeCopy(ctx context.Context, bookID string) (bool, error) {
	const query = `UPDATE books SET available_copies = available_copies - 1, updated_at = $2 WHERE id = $1 AND available_copies > 0`
	res, err := t.tx.ExecContext(ctx, query, bookID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("take copy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("take copy rows: %w", err)
	}
	return affected == 1, nil
}

// ReleaseCopy increments available copies, never past the total.
func (t *lendingTx) ReleaseCopy(ctx context.Context, bookID string) error {
	const query = `UPDATE books SET available_copies = LEAST(available_copies + 1, total_copies), updated_at = $2 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, bookID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	return nil
}

func (t *lendingTx) SetCopies(ctx context.Context, bookID string, total, available int) error {
	const query = `UPDATE books SET total_copies = $2, available_copies = $3, updated_at = $4 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, bookID, total, available, time.Now().UTC()); err != nil {
		return fmt.Errorf("set copies: %w", err)
	}
	return nil
}

func (t *lendingTx) CountOpenBorrowings(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM borrowings WHERE student_id = $1 AND status IN ($2, $3)`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, studentID, models.BorrowingStatusActive, models.BorrowingStatusOverdue); err != nil {
		return 0, fmt.Errorf("count open borrowings: %w", err)
	}
	return count, nil
}

func (t *lendingTx) CountOpenBorrowingsForBook(ctx context.Context, bookID string) (int, error) {
	const query = `SELECT COUNT(*) FROM borrowings WHERE book_id = $1 AND status IN ($2, $3)`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, bookID, models.BorrowingStatusActive, models.BorrowingStatusOverdue); err != nil {
		return 0, fmt.Errorf("count book borrowings: %w", err)
	}
	return count, nil
}

func (t *lendingTx) HasOpenBorrowing(ctx context.Context, studentID, bookID string) (bool, error) {
	const query = `SELECT 1 FROM borrowings WHERE student_id = $1 AND book_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	if err := t.tx.GetContext(ctx, &exists, query, studentID, bookID, models.BorrowingStatusActive, models.BorrowingStatusOverdue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check open borrowing: %w", err)
	}
	return true, nil
}

// EarliestDueBorrower returns the student whose open loan of the book is due first.
func (t *lendingTx) EarliestDueBorrower(ctx context.Context, bookID string) (*string, error) {
	const query = `SELECT student_id FROM borrowings WHERE book_id = $1 AND status IN ($2, $3) ORDER BY due_date ASC LIMIT 1`
	var studentID string
	if err := t.tx.GetContext(ctx, &studentID, query, bookID, models.BorrowingStatusActive, models.BorrowingStatusOverdue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find current borrower: %w", err)
	}
	return &studentID, nil
}

func (t *lendingTx) CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error {
	if borrowing.ID == "" {
		borrowing.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if borrowing.CreatedAt.IsZero() {
		borrowing.CreatedAt = now
	}
	borrowing.UpdatedAt = borrowing.CreatedAt
	if borrowing.Status == "" {
		borrowing.Status = models.BorrowingStatusActive
	}
	const query = `INSERT INTO borrowings (` + borrowingColumns + `)
        VALUES (:id, :student_id, :book_id, :reservation_id, :borrow_date, :due_date, :status, :extension_count, :lending_condition, :return_condition, :return_date, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, borrowing); err != nil {
		return fmt.Errorf("create borrowing: %w", err)
	}
	return nil
}

func (t *lendingTx) FindBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	query := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE id = $1`
	var borrowing models.Borrowing
	if err := t.tx.GetContext(ctx, &borrowing, query, id); err != nil {
		return nil, err
	}
	return &borrowing, nil
}

func (t *lendingTx) LockBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	query := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE id = $1 FOR UPDATE`
	var borrowing models.Borrowing
	if err := t.tx.GetContext(ctx, &borrowing, query, id); err != nil {
		return nil, err
	}
	return &borrowing, nil
}

func (t *lendingTx) MarkBorrowingReturned(ctx context.Context, id, returnCondition string, returnedAt time.Time) error {
	const query = `UPDATE borrowings SET status = $2, return_condition = $3, return_date = $4, updated_at = $4 WHERE id = $1 AND status <> $2`
	res, err := t.tx.ExecContext(ctx, query, id, models.BorrowingStatusReturned, returnCondition, returnedAt)
	if err != nil {
		return fmt.Errorf("mark borrowing returned: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *lendingTx) UpdateBorrowingDueDate(ctx context.Context, id string, dueDate time.Time, extensionCount int, status models.BorrowingStatus) error {
	const query = `UPDATE borrowings SET due_date = $2, extension_count = $3, status = $4, updated_at = $5 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, id, dueDate, extensionCount, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update borrowing due date: %w", err)
	}
	return nil
}

func (t *lendingTx) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now().UTC()
	}
	reservation.UpdatedAt = reservation.CreatedAt
	const query = `INSERT INTO reservations (` + reservationColumns + `)
        VALUES (:id, :student_id, :book_id, :status, :pickup_deadline, :current_borrower_id, :cancel_reason, :borrowing_id, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, reservation); err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (t *lendingTx) FindReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	var reservation models.Reservation
	if err := t.tx.GetContext(ctx, &reservation, query, id); err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (t *lendingTx) LockReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	var reservation models.Reservation
	if err := t.tx.GetContext(ctx, &reservation, query, id); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// NextHeldReservation returns the oldest queued reservation for the book, or nil when the queue is empty.
func (t *lendingTx) NextHeldReservation(ctx context.Context, bookID string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE book_id = $1 AND status = $2 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`
	var reservation models.Reservation
	if err := t.tx.GetContext(ctx, &reservation, query, bookID, models.ReservationStatusHeld); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next held reservation: %w", err)
	}
	return &reservation, nil
}

func (t *lendingTx) CountOpenReservations(ctx context.Context, bookID string) (int, error) {
	const query = `SELECT COUNT(*) FROM reservations WHERE book_id = $1 AND status IN ($2, $3)`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, bookID, models.ReservationStatusHeld, models.ReservationStatusAwaitingPickup); err != nil {
		return 0, fmt.Errorf("count open reservations: %w", err)
	}
	return count, nil
}

func (t *lendingTx) CountAwaitingPickup(ctx context.Context, bookID string) (int, error) {
	const query = `SELECT COUNT(*) FROM reservations WHERE book_id = $1 AND status = $2`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, bookID, models.ReservationStatusAwaitingPickup); err != nil {
		return 0, fmt.Errorf("count awaiting pickup: %w", err)
	}
	return count, nil
}

func (t *lendingTx) HasOpenReservation(ctx context.Context, studentID, bookID string) (bool, error) {
	const query = `SELECT 1 FROM reservations WHERE student_id = $1 AND book_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	if err := t.tx.GetContext(ctx, &exists, query, studentID, bookID, models.ReservationStatusHeld, models.ReservationStatusAwaitingPickup); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check open reservation: %w", err)
	}
	return true, nil
}

func (t *lendingTx) UpdateReservation(ctx context.Context, reservation *models.Reservation) error {
	reservation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reservations SET status = :status, pickup_deadline = :pickup_deadline, current_borrower_id = :current_borrower_id,
        cancel_reason = :cancel_reason, borrowing_id = :borrowing_id, updated_at = :updated_at WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, reservation); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	return nil
}

func (t *lendingTx) DeleteReservation(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM reservation_events WHERE reservation_id = $1`, id); err != nil {
		return fmt.Errorf("delete reservation events: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

func (t *lendingTx) AppendReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reservation_events (id, reservation_id, type, from_status, to_status, actor_id, note, created_at)
        VALUES (:id, :reservation_id, :type, :from_status, :to_status, :actor_id, :note, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append reservation event: %w", err)
	}
	return nil
}
