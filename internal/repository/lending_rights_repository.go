package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/library-lending-api/internal/models"
)

// LendingRightsRepository manages per-book lending rule overrides.
type LendingRightsRepository struct {
	db *sqlx.DB
}

// NewLendingRightsRepository constructs a LendingRightsRepository.
func NewLendingRightsRepository(db *sqlx.DB) *LendingRightsRepository {
	return &LendingRightsRepository{db: db}
}

// FindByBookID returns the override for a book or sql.ErrNoRows.
func (r *LendingRightsRepository) FindByBookID(ctx context.Context, bookID string) (*models.BookLendingRights, error) {
	query := `SELECT ` + rightsColumns + ` FROM book_lending_rights WHERE book_id = $1`
	var rights models.BookLendingRights
	if err := r.db.GetContext(ctx, &rights, query, bookID); err != nil {
		return nil, err
	}
	return &rights, nil
}

// Upsert creates or replaces the override of a book. At most one row exists per book.
func (r *LendingRightsRepository) Upsert(ctx context.Context, rights *models.BookLendingRights) error {
	if rights.ID == "" {
		rights.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rights.CreatedAt.IsZero() {
		rights.CreatedAt = now
	}
	rights.UpdatedAt = now
	const query = `INSERT INTO book_lending_rights (` + rightsColumns + `)
        VALUES (:id, :book_id, :loan_duration, :loan_extension_allowed, :extension_limit, :extension_duration, :created_at, :updated_at)
        ON CONFLICT (book_id) DO UPDATE SET loan_duration = EXCLUDED.loan_duration, loan_extension_allowed = EXCLUDED.loan_extension_allowed,
        extension_limit = EXCLUDED.extension_limit, extension_duration = EXCLUDED.extension_duration, updated_at = EXCLUDED.updated_at
        RETURNING id, created_at`
	rows, err := r.db.NamedQueryContext(ctx, query, rights)
	if err != nil {
		return fmt.Errorf("upsert lending rights: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&rights.ID, &rights.CreatedAt); err != nil {
			return fmt.Errorf("scan lending rights: %w", err)
		}
	}
	return rows.Err()
}

// DeleteByBookID removes the override of a book, returning sql.ErrNoRows when none existed.
func (r *LendingRightsRepository) DeleteByBookID(ctx context.Context, bookID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM book_lending_rights WHERE book_id = $1`, bookID)
	if err != nil {
		return fmt.Errorf("delete lending rights: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lending rights rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
