package models

import "time"

// ReservationStatus represents the reservation state machine.
type ReservationStatus string

// Reservation states. Cancelled and CheckedOut are terminal.
const (
	ReservationStatusHeld           ReservationStatus = "HELD"
	ReservationStatusAwaitingPickup ReservationStatus = "AWAITING_PICKUP"
	ReservationStatusCancelled      ReservationStatus = "CANCELLED"
	ReservationStatusCheckedOut     ReservationStatus = "CHECKED_OUT"
)

// CancelReason distinguishes a user cancellation from a lapsed pickup deadline.
type CancelReason string

// Cancellation reasons.
const (
	CancelReasonUser    CancelReason = "USER"
	CancelReasonExpired CancelReason = "EXPIRED"
)

// Reservation is a student's place in a book's waiting queue.
type Reservation struct {
	ID                string            `db:"id" json:"id"`
	StudentID         string            `db:"student_id" json:"studentId"`
	BookID            string            `db:"book_id" json:"bookId"`
	Status            ReservationStatus `db:"status" json:"status"`
	PickupDeadline    *time.Time        `db:"pickup_deadline" json:"pickupDeadline,omitempty"`
	CurrentBorrowerID *string           `db:"current_borrower_id" json:"currentBorrowerId,omitempty"`
	CancelReason      *CancelReason     `db:"cancel_reason" json:"cancelReason,omitempty"`
	BorrowingID       *string           `db:"borrowing_id" json:"borrowingId,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// IsTerminal reports whether the reservation can no longer change state.
func (r Reservation) IsTerminal() bool {
	return r.Status == ReservationStatusCancelled || r.Status == ReservationStatusCheckedOut
}

// IsOpen reports whether the reservation still occupies a queue slot.
func (r Reservation) IsOpen() bool {
	return r.Status == ReservationStatusHeld || r.Status == ReservationStatusAwaitingPickup
}

// ReservationDetail adds queue position and names for display.
type ReservationDetail struct {
	Reservation
	QueuePosition int    `db:"queue_position" json:"queuePosition,omitempty"`
	StudentName   string `db:"student_name" json:"studentName"`
	BookTitle     string `db:"book_title" json:"bookTitle"`
}

// ReservationFilter provides filters for listing reservations.
type ReservationFilter struct {
	StudentID string
	BookID    string
	Status    ReservationStatus
	Page      int
	PageSize  int
	SortOrder string
}

// ReservationEventType names an entry of the reservation audit trail.
type ReservationEventType string

// Reservation audit events.
const (
	ReservationEventCreated    ReservationEventType = "CREATED"
	ReservationEventPromoted   ReservationEventType = "PROMOTED"
	ReservationEventExtended   ReservationEventType = "EXTENDED"
	ReservationEventCheckedOut ReservationEventType = "CHECKED_OUT"
	ReservationEventCancelled  ReservationEventType = "CANCELLED"
	ReservationEventExpired    ReservationEventType = "EXPIRED"
)

// ReservationEvent records a single state change of a reservation.
type ReservationEvent struct {
	ID            string               `db:"id" json:"id"`
	ReservationID string               `db:"reservation_id" json:"reservationId"`
	Type          ReservationEventType `db:"type" json:"type"`
	FromStatus    *ReservationStatus   `db:"from_status" json:"fromStatus,omitempty"`
	ToStatus      ReservationStatus    `db:"to_status" json:"toStatus"`
	ActorID       *string              `db:"actor_id" json:"actorId,omitempty"`
	Note          *string              `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time            `db:"created_at" json:"createdAt"`
}
