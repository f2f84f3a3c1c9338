package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-lending-api/internal/models"
)

var reservationDetailColumns = []string{"id", "student_id", "book_id", "status", "pickup_deadline", "current_borrower_id", "cancel_reason",
	"borrowing_id", "created_at", "updated_at", "student_name", "book_title", "queue_position"}

func TestReservationRepositoryListQueue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)
	first := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	deadline := first.AddDate(0, 0, 7)

	rows := sqlmock.NewRows(reservationDetailColumns).
		AddRow("res-1", "stu-1", "book-1", "AWAITING_PICKUP", deadline, nil, nil, nil, first, first, "Ada", "Dune", 1).
		AddRow("res-2", "stu-2", "book-1", "HELD", nil, "stu-9", nil, nil, first.Add(time.Hour), first.Add(time.Hour), "Grace", "Dune", 2)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.book_id = $1 AND r.status IN ($2, $3) ORDER BY r.created_at ASC, r.id ASC")).
		WithArgs("book-1", "HELD", "AWAITING_PICKUP").
		WillReturnRows(rows)

	queue, err := repo.ListQueue(context.Background(), "book-1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, 1, queue[0].QueuePosition)
	assert.Equal(t, models.ReservationStatusAwaitingPickup, queue[0].Status)
	assert.Equal(t, 2, queue[1].QueuePosition)
	assert.Nil(t, queue[1].PickupDeadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryListExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND pickup_deadline < $2 ORDER BY pickup_deadline ASC LIMIT $3")).
		WithArgs("AWAITING_PICKUP", now, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "book_id", "status", "pickup_deadline", "current_borrower_id", "cancel_reason", "borrowing_id", "created_at", "updated_at"}).
			AddRow("res-1", "stu-1", "book-1", "AWAITING_PICKUP", now.Add(-time.Hour), nil, nil, nil, now, now))

	items, err := repo.ListExpiredAwaitingPickup(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "res-1", items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryListEvents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)
	now := time.Now()

	mock.ExpectQuery("FROM reservation_events WHERE reservation_id").
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "type", "from_status", "to_status", "actor_id", "note", "created_at"}).
			AddRow("ev-1", "res-1", "CREATED", nil, "HELD", "user-1", nil, now).
			AddRow("ev-2", "res-1", "EXPIRED", "AWAITING_PICKUP", "CANCELLED", nil, "pickup deadline passed", now))

	events, err := repo.ListEvents(context.Background(), "res-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].FromStatus)
	assert.Equal(t, models.ReservationEventExpired, events[1].Type)
	require.NotNil(t, events[1].FromStatus)
	assert.Equal(t, models.ReservationStatusAwaitingPickup, *events[1].FromStatus)
}
