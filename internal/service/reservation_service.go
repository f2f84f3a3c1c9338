package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/internal/repository"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type reservationReader interface {
	List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.ReservationDetail, error)
	ListQueue(ctx context.Context, bookID string) ([]models.ReservationDetail, error)
	ListEvents(ctx context.Context, reservationID string) ([]models.ReservationEvent, error)
}

// ReservationService drives the reservation state machine.
type ReservationService struct {
	engine           *Engine
	reservations     reservationReader
	maxExtensionDays int
	validator        *validator.Validate
	logger           *zap.Logger
}

// NewReservationService constructs a ReservationService. maxExtensionDays caps a single pickup extension.
func NewReservationService(engine *Engine, reservations reservationReader, maxExtensionDays int, validate *validator.Validate, logger *zap.Logger) *ReservationService {
	if maxExtensionDays <= 0 {
		maxExtensionDays = 14
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		engine:           engine,
		reservations:     reservations,
		maxExtensionDays: maxExtensionDays,
		validator:        validate,
		logger:           logger,
	}
}

// Create queues a student for a book with no copy on the shelf.
func (s *ReservationService) Create(ctx context.Context, req dto.CreateReservationRequest, actor *models.JWTClaims) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reservation payload")
	}
	now := s.engine.now()

	var reservation *models.Reservation
	err := s.engine.run(ctx, "create_reservation", func(tx repository.LendingTx, fx *effects) error {
		book, err := tx.LockBook(ctx, req.BookID)
		if err != nil {
			return notFoundOr(err, "book")
		}
		student, err := tx.LockStudent(ctx, req.StudentID)
		if err != nil {
			return notFoundOr(err, "student")
		}
		if student.IsBanned(now) {
			return banError(student.Student)
		}
		if book.AvailableCopies > 0 {
			return appErrors.WithDetails(appErrors.ErrBookStillAvailable, map[string]interface{}{
				"bookId":          book.ID,
				"availableCopies": book.AvailableCopies,
			})
		}
		if err := s.ensureNotHolding(ctx, tx, student.ID, book.ID); err != nil {
			return err
		}

		ahead, err := tx.CountOpenReservations(ctx, book.ID)
		if err != nil {
			return err
		}
		borrowed, err := tx.CountOpenBorrowingsForBook(ctx, book.ID)
		if err != nil {
			return err
		}
		awaiting, err := tx.CountAwaitingPickup(ctx, book.ID)
		if err != nil {
			return err
		}
		policy, err := s.engine.policyFor(ctx, tx, book.ID, student)
		if err != nil {
			return err
		}

		reservation = &models.Reservation{
			StudentID: student.ID,
			BookID:    book.ID,
			Status:    initialReservationStatus(ahead, book.TotalCopies-borrowed-awaiting),
			CreatedAt: now,
		}
		switch reservation.Status {
		case models.ReservationStatusAwaitingPickup:
			window := s.engine.resolver.PickupWindow(policy)
			if req.DaysUntilExpiry != nil {
				if *req.DaysUntilExpiry > window {
					return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "daysUntilExpiry exceeds the pickup window"), map[string]interface{}{
						"field":     "daysUntilExpiry",
						"maxDays":   window,
						"requested": *req.DaysUntilExpiry,
					})
				}
				window = *req.DaysUntilExpiry
			}
			deadline := now.AddDate(0, 0, window)
			reservation.PickupDeadline = &deadline
		default:
			if reservation.CurrentBorrowerID, err = tx.EarliestDueBorrower(ctx, book.ID); err != nil {
				return err
			}
		}

		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return err
		}
		if reservation.Status == models.ReservationStatusAwaitingPickup {
			fx.ready = append(fx.ready, *reservation)
		}
		fx.moved(reservation.Status, "created")
		return appendEvent(ctx, tx, reservation, models.ReservationEventCreated, nil, actorID(actor), "")
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation created",
		zap.String("reservation_id", reservation.ID),
		zap.String("book_id", reservation.BookID),
		zap.String("status", string(reservation.Status)))
	return reservation, nil
}

func (s *ReservationService) ensureNotHolding(ctx context.Context, tx repository.LendingTx, studentID, bookID string) error {
	details := map[string]interface{}{"studentId": studentID, "bookId": bookID}
	borrowing, err := tx.HasOpenBorrowing(ctx, studentID, bookID)
	if err != nil {
		return err
	}
	if borrowing {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "student already borrows this book"), details)
	}
	reserved, err := tx.HasOpenReservation(ctx, studentID, bookID)
	if err != nil {
		return err
	}
	if reserved {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "student already has an open reservation for this book"), details)
	}
	return nil
}

// lockReservation locks the book of a reservation and then the reservation itself.
func lockReservation(ctx context.Context, tx repository.LendingTx, id string) (*models.Reservation, error) {
	located, err := tx.FindReservation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "reservation")
	}
	if _, err := tx.LockBook(ctx, located.BookID); err != nil {
		return nil, notFoundOr(err, "book")
	}
	reservation, err := tx.LockReservation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "reservation")
	}
	return reservation, nil
}

// Checkout turns an awaiting reservation into a borrowing. The set-aside copy is consumed,
// so available copies do not change.
func (s *ReservationService) Checkout(ctx context.Context, id string, req dto.CheckoutReservationRequest, actor *models.JWTClaims) (*dto.CheckoutResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}
	now := s.engine.now()

	var result dto.CheckoutResult
	err := s.engine.run(ctx, "checkout_reservation", func(tx repository.LendingTx, fx *effects) error {
		located, err := tx.FindReservation(ctx, id)
		if err != nil {
			return notFoundOr(err, "reservation")
		}
		if _, err := tx.LockBook(ctx, located.BookID); err != nil {
			return notFoundOr(err, "book")
		}
		student, err := tx.LockStudent(ctx, located.StudentID)
		if err != nil {
			return notFoundOr(err, "student")
		}
		reservation, err := tx.LockReservation(ctx, id)
		if err != nil {
			return notFoundOr(err, "reservation")
		}
		if err := checkCheckout(*reservation, now); err != nil {
			return err
		}
		if err := admitStudent(ctx, tx, s.engine.resolver, student, now); err != nil {
			return err
		}
		policy, err := s.engine.policyFor(ctx, tx, reservation.BookID, student)
		if err != nil {
			return err
		}

		borrowing := &models.Borrowing{
			StudentID:        student.ID,
			BookID:           reservation.BookID,
			ReservationID:    &reservation.ID,
			BorrowDate:       now,
			DueDate:          s.engine.resolver.DueDate(now, policy),
			Status:           models.BorrowingStatusActive,
			LendingCondition: req.LendingCondition,
			CreatedAt:        now,
		}
		if err := tx.CreateBorrowing(ctx, borrowing); err != nil {
			return err
		}

		from := reservation.Status
		reservation.Status = models.ReservationStatusCheckedOut
		reservation.BorrowingID = &borrowing.ID
		if err := tx.UpdateReservation(ctx, reservation); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, reservation, models.ReservationEventCheckedOut, &from, actorID(actor), ""); err != nil {
			return err
		}
		fx.moved(models.ReservationStatusCheckedOut, "checkout")
		result = dto.CheckoutResult{Borrowing: *borrowing, Reservation: *reservation}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation checked out", zap.String("reservation_id", id), zap.String("borrowing_id", result.Borrowing.ID))
	return &result, nil
}

// Cancel closes an open reservation on request. A cancelled awaiting reservation frees its copy.
func (s *ReservationService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := s.engine.run(ctx, "cancel_reservation", func(tx repository.LendingTx, fx *effects) error {
		var err error
		reservation, err = lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkCancel(*reservation); err != nil {
			return err
		}
		if err := s.close(ctx, tx, reservation, models.CancelReasonUser, actorID(actor), fx); err != nil {
			return err
		}
		fx.moved(models.ReservationStatusCancelled, "user")
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation cancelled", zap.String("reservation_id", id))
	return reservation, nil
}

// Expire cancels an awaiting reservation whose pickup deadline passed. It reports false
// without error when the reservation is no longer expirable, so repeated sweeps are harmless.
func (s *ReservationService) Expire(ctx context.Context, id string) (bool, error) {
	now := s.engine.now()
	expired := false
	err := s.engine.run(ctx, "expire_reservation", func(tx repository.LendingTx, fx *effects) error {
		reservation, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if !expirable(*reservation, now) {
			return nil
		}
		if err := s.close(ctx, tx, reservation, models.CancelReasonExpired, nil, fx); err != nil {
			return err
		}
		fx.moved(models.ReservationStatusCancelled, "expired")
		fx.expired = append(fx.expired, *reservation)
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.logger.Info("reservation expired", zap.String("reservation_id", id))
	}
	return expired, nil
}

func (s *ReservationService) close(ctx context.Context, tx repository.LendingTx, reservation *models.Reservation, reason models.CancelReason, actor *string, fx *effects) error {
	from := reservation.Status
	reservation.Status = models.ReservationStatusCancelled
	reservation.CancelReason = &reason
	if err := tx.UpdateReservation(ctx, reservation); err != nil {
		return err
	}
	kind, note := models.ReservationEventCancelled, ""
	if reason == models.CancelReasonExpired {
		kind, note = models.ReservationEventExpired, "pickup deadline passed"
	}
	if err := appendEvent(ctx, tx, reservation, kind, &from, actor, note); err != nil {
		return err
	}
	if from == models.ReservationStatusAwaitingPickup {
		return s.engine.releaseCopy(ctx, tx, reservation.BookID, fx)
	}
	return nil
}

// Extend pushes back the pickup deadline of an awaiting reservation without changing its state.
func (s *ReservationService) Extend(ctx context.Context, id string, req dto.ExtendReservationRequest, actor *models.JWTClaims) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid extension payload")
	}
	if req.AdditionalDays > s.maxExtensionDays {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "additionalDays exceeds the maximum extension"), map[string]interface{}{
			"field":   "additionalDays",
			"maxDays": s.maxExtensionDays,
		})
	}
	now := s.engine.now()

	var reservation *models.Reservation
	err := s.engine.run(ctx, "extend_reservation", func(tx repository.LendingTx, fx *effects) error {
		var err error
		reservation, err = tx.LockReservation(ctx, id)
		if err != nil {
			return notFoundOr(err, "reservation")
		}
		if err := checkExtend(*reservation); err != nil {
			return err
		}
		if expirable(*reservation, now) {
			return appErrors.WithDetails(appErrors.ErrReservationExpired, transitionDetails(*reservation))
		}
		base := now
		if reservation.PickupDeadline != nil {
			base = *reservation.PickupDeadline
		}
		deadline := base.AddDate(0, 0, req.AdditionalDays)
		reservation.PickupDeadline = &deadline
		if err := tx.UpdateReservation(ctx, reservation); err != nil {
			return err
		}
		from := reservation.Status
		return appendEvent(ctx, tx, reservation, models.ReservationEventExtended, &from, actorID(actor), fmt.Sprintf("+%d days", req.AdditionalDays))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Delete hard deletes a cancelled reservation and its event trail.
func (s *ReservationService) Delete(ctx context.Context, id string) error {
	return s.engine.run(ctx, "delete_reservation", func(tx repository.LendingTx, fx *effects) error {
		reservation, err := tx.LockReservation(ctx, id)
		if err != nil {
			return notFoundOr(err, "reservation")
		}
		if err := checkDelete(*reservation); err != nil {
			return err
		}
		return tx.DeleteReservation(ctx, id)
	})
}

// Get returns a reservation with its queue position.
func (s *ReservationService) Get(ctx context.Context, id string) (*models.ReservationDetail, error) {
	detail, err := s.reservations.FindDetailByID(ctx, id)
	if err != nil {
		if mapped := notFoundOr(err, "reservation"); mapped != err {
			return nil, mapped
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservation")
	}
	return detail, nil
}

// List returns reservations with pagination metadata.
func (s *ReservationService) List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, *models.Pagination, error) {
	items, total, err := s.reservations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reservations")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Queue returns the open reservations of a book in pickup order.
func (s *ReservationService) Queue(ctx context.Context, bookID string) ([]models.ReservationDetail, error) {
	items, err := s.reservations.ListQueue(ctx, bookID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservation queue")
	}
	return items, nil
}

// Events returns the audit trail of a reservation.
func (s *ReservationService) Events(ctx context.Context, id string) ([]models.ReservationEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.reservations.ListEvents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservation events")
	}
	return events, nil
}
