package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/internal/repository"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
	"github.com/noah-isme/library-lending-api/pkg/export"
)

type borrowingReader interface {
	List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, int, error)
	ListForExport(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, error)
	FindDetailByID(ctx context.Context, id string) (*models.BorrowingDetail, error)
}

// LendingService lends, returns and renews copies.
type LendingService struct {
	engine     *Engine
	borrowings borrowingReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewLendingService constructs a LendingService.
func NewLendingService(engine *Engine, borrowings borrowingReader, validate *validator.Validate, logger *zap.Logger) *LendingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LendingService{engine: engine, borrowings: borrowings, validator: validate, logger: logger}
}

// CreateBorrowing lends one copy to a student after the ban, limit and stock checks pass.
// The checks and the writes share one transaction holding the book and student locks.
func (s *LendingService) CreateBorrowing(ctx context.Context, req dto.CreateBorrowingRequest) (*models.Borrowing, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid borrowing payload")
	}
	now := s.engine.now()

	var created *models.Borrowing
	err := s.engine.run(ctx, "create_borrowing", func(tx repository.LendingTx, fx *effects) error {
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
		student, err := tx.LockStudent(ctx, req.StudentID)
		if err != nil {
			return notFoundOr(err, "student")
		}

		if err := admitStudent(ctx, tx, s.engine.resolver, student, now); err != nil {
			return err
		}
		open, err := tx.HasOpenBorrowing(ctx, student.ID, book.ID)
		if err != nil {
			return err
		}
		if open {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "student already borrows this book"), map[string]interface{}{
				"studentId": student.ID,
				"bookId":    book.ID,
			})
		}
		reserved, err := tx.HasOpenReservation(ctx, student.ID, book.ID)
		if err != nil {
			return err
		}
		if reserved {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "student has an open reservation for this book, check it out instead"), map[string]interface{}{
				"studentId": student.ID,
				"bookId":    book.ID,
			})
		}

		if _, err := ApplyLend(CopyCounts{Total: book.TotalCopies, Available: book.AvailableCopies}); err != nil {
			return appErrors.WithDetails(appErrors.FromError(err), map[string]interface{}{"bookId": book.ID})
		}
		taken, err := tx.TakeCopy(ctx, book.ID)
		if err != nil {
			return err
		}
		if !taken {
			return appErrors.WithDetails(appErrors.ErrOutOfStock, map[string]interface{}{"bookId": book.ID, "availableCopies": 0})
		}

		policy, err := s.engine.policyFor(ctx, tx, book.ID, student)
		if err != nil {
			return err
		}
		due, err := acceptDate(req.DueDate, s.engine.resolver.DueDate(now, policy), now, "dueDate")
		if err != nil {
			return err
		}

		created = &models.Borrowing{
			StudentID:        student.ID,
			BookID:           book.ID,
			BorrowDate:       now,
			DueDate:          due,
			Status:           models.BorrowingStatusActive,
			LendingCondition: req.LendingCondition,
			CreatedAt:        now,
		}
		return tx.CreateBorrowing(ctx, created)
	})
	if err != nil {
		s.logger.Info("borrowing refused", zap.String("student_id", req.StudentID), zap.String("book_id", req.BookID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("borrowing created", zap.String("borrowing_id", created.ID), zap.Time("due_date", created.DueDate))
	return created, nil
}

// admitStudent enforces the ban and the borrowing limit against a fresh count.
func admitStudent(ctx context.Context, tx repository.LendingTx, resolver *PolicyResolver, student *models.StudentDetail, now time.Time) error {
	if student.IsBanned(now) {
		return banError(student.Student)
	}
	limit, err := resolver.BorrowingLimit(student.Category())
	if err != nil {
		return err
	}
	current, err := tx.CountOpenBorrowings(ctx, student.ID)
	if err != nil {
		return err
	}
	return LimitError(student.Student, EvaluateLimit(student.Student, current, limit, now))
}

// Return closes a borrowing and frees its copy for the reservation queue or the shelf.
func (s *LendingService) Return(ctx context.Context, id string, req dto.ReturnBorrowingRequest) (*models.Borrowing, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	now := s.engine.now()

	var borrowing *models.Borrowing
	err := s.engine.run(ctx, "return_borrowing", func(tx repository.LendingTx, fx *effects) error {
		located, err := tx.FindBorrowing(ctx, id)
		if err != nil {
			return notFoundOr(err, "borrowing")
		}
		if _, err := tx.LockBook(ctx, located.BookID); err != nil {
			return notFoundOr(err, "book")
		}
		borrowing, err = tx.LockBorrowing(ctx, id)
		if err != nil {
			return notFoundOr(err, "borrowing")
		}
		if !borrowing.IsOpen() {
			return appErrors.WithDetails(appErrors.ErrAlreadyReturned, map[string]interface{}{
				"borrowingId": borrowing.ID,
				"returnDate":  borrowing.ReturnDate,
			})
		}
		if err := tx.MarkBorrowingReturned(ctx, borrowing.ID, req.ReturnCondition, now); err != nil {
			return err
		}
		borrowing.Status = models.BorrowingStatusReturned
		borrowing.ReturnCondition = &req.ReturnCondition
		borrowing.ReturnDate = &now
		borrowing.UpdatedAt = now
		return s.engine.releaseCopy(ctx, tx, borrowing.BookID, fx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("borrowing returned", zap.String("borrowing_id", borrowing.ID), zap.String("book_id", borrowing.BookID))
	return borrowing, nil
}

// Renew pushes the due date back by the policy extension, counting one extension.
func (s *LendingService) Renew(ctx context.Context, id string, req dto.RenewBorrowingRequest) (*models.Borrowing, error) {
	now := s.engine.now()

	var borrowing *models.Borrowing
	err := s.engine.run(ctx, "renew_borrowing", func(tx repository.LendingTx, fx *effects) error {
		var err error
		borrowing, err = tx.LockBorrowing(ctx, id)
		if err != nil {
			return notFoundOr(err, "borrowing")
		}
		if !borrowing.IsOpen() {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTransition, "returned borrowings cannot be renewed"), map[string]interface{}{
				"borrowingId": borrowing.ID,
				"status":      borrowing.Status,
			})
		}
		student, err := tx.FindStudent(ctx, borrowing.StudentID)
		if err != nil {
			return notFoundOr(err, "student")
		}
		policy, err := s.engine.policyFor(ctx, tx, borrowing.BookID, student)
		if err != nil {
			return err
		}
		next, err := s.engine.resolver.RenewedDueDate(policy, *borrowing)
		if err != nil {
			return err
		}
		floor := borrowing.DueDate
		if now.After(floor) {
			floor = now
		}
		due, err := acceptDate(req.NewDueDate, next, floor, "newDueDate")
		if err != nil {
			return err
		}

		status := borrowing.Status
		if due.After(now) {
			status = models.BorrowingStatusActive
		}
		if err := tx.UpdateBorrowingDueDate(ctx, borrowing.ID, due, borrowing.ExtensionCount+1, status); err != nil {
			return err
		}
		borrowing.DueDate = due
		borrowing.ExtensionCount++
		borrowing.Status = status
		borrowing.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("borrowing renewed", zap.String("borrowing_id", borrowing.ID), zap.Int("extension_count", borrowing.ExtensionCount))
	return borrowing, nil
}

// Get returns a borrowing with display names.
func (s *LendingService) Get(ctx context.Context, id string) (*models.BorrowingDetail, error) {
	detail, err := s.borrowings.FindDetailByID(ctx, id)
	if err != nil {
		if mapped := notFoundOr(err, "borrowing"); mapped != err {
			return nil, mapped
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrowing")
	}
	return detail, nil
}

// List returns borrowings with pagination metadata.
func (s *LendingService) List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, *models.Pagination, error) {
	items, total, err := s.borrowings.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list borrowings")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Export renders the borrowings matching filter as CSV or PDF.
func (s *LendingService) Export(ctx context.Context, filter models.BorrowingFilter, rawFormat string) (*dto.ExportFile, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	items, err := s.borrowings.ListForExport(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrowings")
	}

	data := export.Dataset{
		Title:   "Borrowings",
		Headers: []string{"Student", "Book", "ISBN", "Borrowed", "Due", "Status", "Extensions"},
	}
	for _, item := range items {
		data.Rows = append(data.Rows, []string{
			item.StudentName,
			item.BookTitle,
			item.BookISBN,
			item.BorrowDate.Format("2006-01-02"),
			item.DueDate.Format("2006-01-02"),
			string(item.Status),
			strconv.Itoa(item.ExtensionCount),
		})
	}
	payload, err := export.Render(format, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("borrowings-%s.%s", s.engine.now().Format("20060102"), format),
		ContentType: format.ContentType(),
		Data:        payload,
	}, nil
}

// acceptDate returns the policy date when requested is nil. A requested date is honoured only
// when it falls after floor and not after the policy date.
func acceptDate(requested *time.Time, policyDate, floor time.Time, field string) (time.Time, error) {
	if requested == nil {
		return policyDate, nil
	}
	value := requested.UTC()
	if value.After(policyDate) || !value.After(floor) {
		return time.Time{}, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, field+" is outside the policy window"), map[string]interface{}{
			"field":   field,
			"maxDate": policyDate,
			"after":   floor,
		})
	}
	return value, nil
}
