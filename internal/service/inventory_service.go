package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/internal/repository"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

// InventoryService applies batch copy adjustments.
type InventoryService struct {
	engine    *Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(engine *Engine, validate *validator.Validate, logger *zap.Logger) *InventoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{engine: engine, validator: validate, logger: logger}
}

// Adjust adds and removes copies of a book. Copies landing on the shelf are handed to queued
// reservations first.
func (s *InventoryService) Adjust(ctx context.Context, req dto.AdjustCopiesRequest) (*dto.AdjustCopiesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}

	var result dto.AdjustCopiesResult
	err := s.engine.run(ctx, "adjust_copies", func(tx repository.LendingTx, fx *effects) error {
		var (
			book *models.Book
			err  error
		)
		if req.BookID != "" {
			book, err = tx.LockBook(ctx, req.BookID)
		} else {
			book, err = tx.LockBookByISBN(ctx, req.ISBN)
		}
		if err != nil {
			return notFoundOr(err, "book")
		}

		next, err := ApplyAdjustment(CopyCounts{Total: book.TotalCopies, Available: book.AvailableCopies}, req.Add, req.Remove)
		if err != nil {
			return appErrors.WithDetails(appErrors.FromError(err), map[string]interface{}{"bookId": book.ID})
		}
		if err := tx.SetCopies(ctx, book.ID, next.Total, next.Available); err != nil {
			return err
		}
		if next.Available > 0 {
			if err := s.engine.fillFromShelf(ctx, tx, book.ID, fx); err != nil {
				return err
			}
		}

		updated, err := tx.LockBook(ctx, book.ID)
		if err != nil {
			return err
		}
		result.Book = *updated
		result.Promoted = append([]models.Reservation{}, fx.ready...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("copies adjusted",
		zap.String("book_id", result.Book.ID),
		zap.Int("total_copies", result.Book.TotalCopies),
		zap.Int("available_copies", result.Book.AvailableCopies),
		zap.Int("promoted", len(result.Promoted)))
	return &result, nil
}
