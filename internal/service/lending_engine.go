package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/internal/repository"
	"github.com/noah-isme/library-lending-api/pkg/database"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type lendingStore interface {
	WithinTx(ctx context.Context, fn func(repository.LendingTx) error) error
}

// Engine holds what every lending workflow shares: the transactional store, the policy
// resolver and the post-commit side effects. All copy counter writes go through it.
type Engine struct {
	store    lendingStore
	resolver *PolicyResolver
	notifier Notifier
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine wires the lending core.
func NewEngine(store lendingStore, resolver *PolicyResolver, notifier Notifier, metrics *MetricsService, logger *zap.Logger) *Engine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// effects collects notifications and metrics to emit once the transaction committed.
type effects struct {
	ready       []models.Reservation
	expired     []models.Reservation
	transitions []transition
}

type transition struct {
	to     models.ReservationStatus
	reason string
}

func (fx *effects) promote(r models.Reservation) {
	fx.ready = append(fx.ready, r)
	fx.moved(models.ReservationStatusAwaitingPickup, "promoted")
}

func (fx *effects) moved(to models.ReservationStatus, reason string) {
	fx.transitions = append(fx.transitions, transition{to: to, reason: reason})
}

func (e *Engine) run(ctx context.Context, operation string, fn func(tx repository.LendingTx, fx *effects) error) error {
	fx := &effects{}
	err := e.store.WithinTx(ctx, func(tx repository.LendingTx) error {
		return fn(tx, fx)
	})
	err = mapTxError(err, "failed to "+strings.ReplaceAll(operation, "_", " "))
	e.metrics.RecordLendingOperation(operation, outcome(err))
	if err != nil {
		return err
	}
	e.flush(ctx, fx)
	return nil
}

func (e *Engine) flush(ctx context.Context, fx *effects) {
	for _, t := range fx.transitions {
		e.metrics.RecordReservationTransition(string(t.to), t.reason)
	}
	for _, r := range fx.ready {
		message := "A reserved copy is waiting for you"
		if r.PickupDeadline != nil {
			message = fmt.Sprintf("A reserved copy is waiting for you until %s", r.PickupDeadline.Format("2006-01-02"))
		}
		e.notifier.Notify(ctx, r.StudentID, models.NotificationReservationReady, message)
	}
	for _, r := range fx.expired {
		e.notifier.Notify(ctx, r.StudentID, models.NotificationReservationExpired, "Your reservation expired because the copy was not picked up in time")
	}
}

// policyFor resolves the effective policy of a student for a book inside the transaction.
func (e *Engine) policyFor(ctx context.Context, tx repository.LendingTx, bookID string, student *models.StudentDetail) (models.LendingPolicy, error) {
	rights, err := tx.FindLendingRights(ctx, bookID)
	if err != nil {
		return models.LendingPolicy{}, err
	}
	return e.resolver.Resolve(rights, student.Category())
}

// releaseCopy hands a freed copy to the oldest Held reservation, or puts it back on the shelf
// when the queue is empty. The caller must hold the book lock.
func (e *Engine) releaseCopy(ctx context.Context, tx repository.LendingTx, bookID string, fx *effects) error {
	next, err := tx.NextHeldReservation(ctx, bookID)
	if err != nil {
		return err
	}
	if next == nil {
		return tx.ReleaseCopy(ctx, bookID)
	}
	return e.promote(ctx, tx, next, "copy released", fx)
}

// fillFromShelf promotes Held reservations while copies sit on the shelf, one copy each.
func (e *Engine) fillFromShelf(ctx context.Context, tx repository.LendingTx, bookID string, fx *effects) error {
	for {
		next, err := tx.NextHeldReservation(ctx, bookID)
		if err != nil || next == nil {
			return err
		}
		taken, err := tx.TakeCopy(ctx, bookID)
		if err != nil || !taken {
			return err
		}
		if err := e.promote(ctx, tx, next, "copies added", fx); err != nil {
			return err
		}
	}
}

func (e *Engine) promote(ctx context.Context, tx repository.LendingTx, r *models.Reservation, note string, fx *effects) error {
	student, err := tx.FindStudent(ctx, r.StudentID)
	if err != nil {
		return fmt.Errorf("load queued student: %w", err)
	}
	policy, err := e.policyFor(ctx, tx, r.BookID, student)
	if err != nil {
		return err
	}
	deadline := e.resolver.PickupDeadline(e.now(), policy)
	from := r.Status
	r.Status = models.ReservationStatusAwaitingPickup
	r.PickupDeadline = &deadline
	r.CurrentBorrowerID = nil
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, r, models.ReservationEventPromoted, &from, nil, note); err != nil {
		return err
	}
	fx.promote(*r)
	e.logger.Info("reservation promoted",
		zap.String("reservation_id", r.ID),
		zap.String("book_id", r.BookID),
		zap.Time("pickup_deadline", deadline))
	return nil
}

func appendEvent(ctx context.Context, tx repository.LendingTx, r *models.Reservation, kind models.ReservationEventType, from *models.ReservationStatus, actorID *string, note string) error {
	event := &models.ReservationEvent{
		ReservationID: r.ID,
		Type:          kind,
		FromStatus:    from,
		ToStatus:      r.Status,
		ActorID:       actorID,
	}
	if note != "" {
		event.Note = &note
	}
	return tx.AppendReservationEvent(ctx, event)
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return err
}

// mapTxError keeps typed errors, reports lock and serialization failures as conflicts and
// wraps everything else as internal.
func mapTxError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if database.IsConflict(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "concurrent update, retry the request")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(appErrors.FromError(err).Code)
}
