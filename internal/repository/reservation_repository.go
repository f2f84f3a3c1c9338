package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-lending-api/internal/models"
)

// Queue position is the 1-based FIFO rank among open reservations of the same book; closed reservations report 0.
const reservationDetailSelect = `SELECT r.id, r.student_id, r.book_id, r.status, r.pickup_deadline, r.current_borrower_id, r.cancel_reason,
        r.borrowing_id, r.created_at, r.updated_at, s.name AS student_name, b.title AS book_title,
        CASE WHEN r.status IN ('HELD', 'AWAITING_PICKUP') THEN (
            SELECT COUNT(*) FROM reservations q
            WHERE q.book_id = r.book_id AND q.status IN ('HELD', 'AWAITING_PICKUP') AND (q.created_at, q.id) <= (r.created_at, r.id)
        ) ELSE 0 END AS queue_position
        FROM reservations r
        JOIN students s ON s.id = r.student_id
        JOIN books b ON b.id = r.book_id`

// ReservationRepository serves reservation queries and the expiry sweep.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs a ReservationRepository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// List returns reservations matching the filter with the total count.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error) {
	var args []interface{}
	conditions := []string{"1=1"}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("r.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY r.created_at %s, r.id %s LIMIT %d OFFSET %d", reservationDetailSelect, where, order, order, size, (page-1)*size)

	var items []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reservations r"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	return items, total, nil
}

// FindDetailByID fetches a reservation with its queue position.
func (r *ReservationRepository) FindDetailByID(ctx context.Context, id string) (*models.ReservationDetail, error) {
	var detail models.ReservationDetail
	if err := r.db.GetContext(ctx, &detail, reservationDetailSelect+` WHERE r.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListQueue returns the open reservations of a book in FIFO order.
func (r *ReservationRepository) ListQueue(ctx context.Context, bookID string) ([]models.ReservationDetail, error) {
	query := reservationDetailSelect + ` WHERE r.book_id = $1 AND r.status IN ($2, $3) ORDER BY r.created_at ASC, r.id ASC`
	var items []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &items, query, bookID, models.ReservationStatusHeld, models.ReservationStatusAwaitingPickup); err != nil {
		return nil, fmt.Errorf("list reservation queue: %w", err)
	}
	return items, nil
}

// ListEvents returns the audit trail of a reservation, oldest first.
func (r *ReservationRepository) ListEvents(ctx context.Context, reservationID string) ([]models.ReservationEvent, error) {
	const query = `SELECT id, reservation_id, type, from_status, to_status, actor_id, note, created_at
        FROM reservation_events WHERE reservation_id = $1 ORDER BY created_at ASC, id ASC`
	var events []models.ReservationEvent
	if err := r.db.SelectContext(ctx, &events, query, reservationID); err != nil {
		return nil, fmt.Errorf("list reservation events: %w", err)
	}
	return events, nil
}

// ListExpiredAwaitingPickup returns AwaitingPickup reservations whose deadline passed before now.
func (r *ReservationRepository) ListExpiredAwaitingPickup(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE status = $1 AND pickup_deadline < $2 ORDER BY pickup_deadline ASC LIMIT $3`
	var items []models.Reservation
	if err := r.db.SelectContext(ctx, &items, query, models.ReservationStatusAwaitingPickup, now, limit); err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return items, nil
}
