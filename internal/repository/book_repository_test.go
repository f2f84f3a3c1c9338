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

func TestBookRepositoryListSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)
	available := false

	mock.ExpectQuery(regexp.QuoteMeta("OR b.isbn LIKE $1) AND b.available_copies = 0 ORDER BY b.title ASC LIMIT 20 OFFSET 0")).
		WithArgs("%dune%").
		WillReturnRows(bookRows(time.Now(), 1, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM books b")).
		WithArgs("%dune%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	books, total, err := repo.List(context.Background(), models.BookFilter{Search: "Dune", Available: &available})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, books, 1)
	assert.Equal(t, 0, books[0].AvailableCopies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookRepositoryFindDetail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "title", "author", "isbn", "call_number", "keywords", "total_copies", "available_copies", "created_at", "updated_at",
		"open_borrowings", "queue_length", "has_lending_rights"}).
		AddRow("book-1", "Dune", "Frank Herbert", "9780441013593", "SF HER", nil, 2, 0, now, now, 2, 3, true)
	mock.ExpectQuery("AS has_lending_rights").
		WithArgs("book-1", "ACTIVE", "OVERDUE", "HELD", "AWAITING_PICKUP").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), "book-1")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.OpenBorrowings)
	assert.Equal(t, 3, detail.QueueLength)
	assert.True(t, detail.HasLendingRights)
}
