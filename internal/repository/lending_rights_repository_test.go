package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-lending-api/internal/models"
)

func TestLendingRightsUpsertReturnsStoredID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLendingRightsRepository(db)
	created := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("(?s)INSERT INTO book_lending_rights .* ON CONFLICT \\(book_id\\) DO UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("rights-existing", created))

	rights := &models.BookLendingRights{BookID: "book-1", LoanDuration: 21, LoanExtensionAllowed: true, ExtensionLimit: 1, ExtensionDuration: 7}
	require.NoError(t, repo.Upsert(context.Background(), rights))
	assert.Equal(t, "rights-existing", rights.ID)
	assert.Equal(t, created, rights.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLendingRightsDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLendingRightsRepository(db)

	mock.ExpectExec("DELETE FROM book_lending_rights").WithArgs("book-1").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByBookID(context.Background(), "book-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
