package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type lendingRightsRepository interface {
	FindByBookID(ctx context.Context, bookID string) (*models.BookLendingRights, error)
	Upsert(ctx context.Context, rights *models.BookLendingRights) error
	DeleteByBookID(ctx context.Context, bookID string) error
}

// LendingRightsService administers per-book lending overrides.
type LendingRightsService struct {
	books     policyBookReader
	repo      lendingRightsRepository
	cache     *PolicyCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLendingRightsService constructs a LendingRightsService. cache may be nil.
func NewLendingRightsService(books policyBookReader, repo lendingRightsRepository, cache *PolicyCache, validate *validator.Validate, logger *zap.Logger) *LendingRightsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LendingRightsService{books: books, repo: repo, cache: cache, validator: validate, logger: logger}
}

// Get returns the lending rights of a book.
func (s *LendingRightsService) Get(ctx context.Context, bookID string) (*models.BookLendingRights, error) {
	rights, err := s.repo.FindByBookID(ctx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lending rights not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lending rights")
	}
	return rights, nil
}

// Upsert creates or replaces the lending rights of a book.
func (s *LendingRightsService) Upsert(ctx context.Context, bookID string, req dto.UpsertLendingRightsRequest) (*models.BookLendingRights, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lending rights payload")
	}
	if _, err := s.books.FindByID(ctx, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	rights := &models.BookLendingRights{
		BookID:               bookID,
		LoanDuration:         req.LoanDuration,
		LoanExtensionAllowed: req.LoanExtensionAllowed,
		ExtensionLimit:       req.ExtensionLimit,
		ExtensionDuration:    req.ExtensionDuration,
	}
	if err := s.repo.Upsert(ctx, rights); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save lending rights")
	}
	s.invalidate(ctx, bookID)
	s.logger.Info("lending rights saved", zap.String("book_id", bookID), zap.Int("loan_duration", rights.LoanDuration))
	return rights, nil
}

// Delete removes the lending rights of a book so the category policy applies again.
func (s *LendingRightsService) Delete(ctx context.Context, bookID string) error {
	if err := s.repo.DeleteByBookID(ctx, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lending rights not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lending rights")
	}
	s.invalidate(ctx, bookID)
	return nil
}

func (s *LendingRightsService) invalidate(ctx context.Context, bookID string) {
	if err := s.cache.ForgetBook(ctx, bookID); err != nil {
		s.logger.Warn("lending rights cache invalidation failed", zap.String("book_id", bookID), zap.Error(err))
	}
}
