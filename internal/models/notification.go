package models

import "time"

// NotificationKind classifies outbox messages.
type NotificationKind string

// Notification kinds emitted by the lending core.
const (
	NotificationReservationReady   NotificationKind = "RESERVATION_READY"
	NotificationReservationExpired NotificationKind = "RESERVATION_EXPIRED"
	NotificationBorrowingOverdue   NotificationKind = "BORROWING_OVERDUE"
)

// Notification is an outbox record awaiting delivery by an external dispatcher.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"studentId"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Message   string           `db:"message" json:"message"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}
