package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type reservationServiceMock struct {
	owner       string
	createActor *models.JWTClaims
	cancelled   bool
	checkoutErr error
	extendReq   dto.ExtendReservationRequest
	deleteErr   error
	lastFilter  models.ReservationFilter
	queueBookID string
}

func (m *reservationServiceMock) Create(ctx context.Context, req dto.CreateReservationRequest, actor *models.JWTClaims) (*models.Reservation, error) {
	m.createActor = actor
	return &models.Reservation{ID: "r-1", StudentID: req.StudentID, BookID: req.BookID, Status: models.ReservationStatusHeld}, nil
}

func (m *reservationServiceMock) Checkout(ctx context.Context, id string, req dto.CheckoutReservationRequest, actor *models.JWTClaims) (*dto.CheckoutResult, error) {
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	return &dto.CheckoutResult{Reservation: models.Reservation{ID: id, Status: models.ReservationStatusCheckedOut}}, nil
}

func (m *reservationServiceMock) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.Reservation, error) {
	m.cancelled = true
	return &models.Reservation{ID: id, Status: models.ReservationStatusCancelled}, nil
}

func (m *reservationServiceMock) Extend(ctx context.Context, id string, req dto.ExtendReservationRequest, actor *models.JWTClaims) (*models.Reservation, error) {
	m.extendReq = req
	return &models.Reservation{ID: id, Status: models.ReservationStatusAwaitingPickup}, nil
}

func (m *reservationServiceMock) Delete(ctx context.Context, id string) error {
	return m.deleteErr
}

func (m *reservationServiceMock) Get(ctx context.Context, id string) (*models.ReservationDetail, error) {
	return &models.ReservationDetail{Reservation: models.Reservation{ID: id, StudentID: m.owner}}, nil
}

func (m *reservationServiceMock) List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return nil, models.NewPagination(filter.Page, filter.PageSize, 0), nil
}

func (m *reservationServiceMock) Queue(ctx context.Context, bookID string) ([]models.ReservationDetail, error) {
	m.queueBookID = bookID
	return []models.ReservationDetail{{QueuePosition: 1}}, nil
}

func (m *reservationServiceMock) Events(ctx context.Context, id string) ([]models.ReservationEvent, error) {
	return []models.ReservationEvent{{ReservationID: id, Type: models.ReservationEventCreated}}, nil
}

func TestReservationHandlerCreate(t *testing.T) {
	svc := &reservationServiceMock{}
	h := NewReservationHandler(svc)

	c, w := newTestContext(http.MethodPost, "/reservations", `{"studentId":"s1","bookId":"b1"}`, studentClaims)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, studentClaims, svc.createActor)

	c, w = newTestContext(http.MethodPost, "/reservations", `{"studentId":"s2","bookId":"b1"}`, studentClaims)
	h.Create(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReservationHandlerCancelChecksOwnership(t *testing.T) {
	svc := &reservationServiceMock{owner: "s2"}
	h := NewReservationHandler(svc)

	c, w := newTestContext(http.MethodPost, "/reservations/r-1/cancel", "", studentClaims, idParam("r-1"))
	h.Cancel(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, svc.cancelled)

	svc.owner = "s1"
	c, w = newTestContext(http.MethodPost, "/reservations/r-1/cancel", "", studentClaims, idParam("r-1"))
	h.Cancel(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.cancelled)
}

func TestReservationHandlerCheckoutExpired(t *testing.T) {
	svc := &reservationServiceMock{checkoutErr: appErrors.ErrReservationExpired}
	h := NewReservationHandler(svc)

	c, w := newTestContext(http.MethodPost, "/reservations/r-1/checkout", "", librarianClaims, idParam("r-1"))
	h.Checkout(c)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "RESERVATION_EXPIRED", errorCode(t, w))
}

func TestReservationHandlerExtend(t *testing.T) {
	svc := &reservationServiceMock{}
	h := NewReservationHandler(svc)

	c, w := newTestContext(http.MethodPost, "/reservations/r-1/extend", `{"additionalDays":3}`, librarianClaims, idParam("r-1"))
	h.Extend(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, svc.extendReq.AdditionalDays)

	c, w = newTestContext(http.MethodPost, "/reservations/r-1/extend", `{"additionalDays":"x"}`, librarianClaims, idParam("r-1"))
	h.Extend(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReservationHandlerDelete(t *testing.T) {
	svc := &reservationServiceMock{}
	h := NewReservationHandler(svc)

	c, w := newTestContext(http.MethodDelete, "/reservations/r-1", "", librarianClaims, idParam("r-1"))
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)

	svc.deleteErr = appErrors.ErrInvalidTransition
	c, w = newTestContext(http.MethodDelete, "/reservations/r-1", "", librarianClaims, idParam("r-1"))
	h.Delete(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReservationHandlerListAndQueue(t *testing.T) {
	svc := &reservationServiceMock{}
	h := NewReservationHandler(svc)

	c, w := newTestContext(http.MethodGet, "/reservations?status=held&bookId=b1", "", studentClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", svc.lastFilter.StudentID)
	assert.Equal(t, models.ReservationStatusHeld, svc.lastFilter.Status)

	c, w = newTestContext(http.MethodGet, "/books/b1/queue", "", librarianClaims, idParam("b1"))
	h.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b1", svc.queueBookID)

	c, w = newTestContext(http.MethodGet, "/reservations/r-1/events", "", librarianClaims, idParam("r-1"))
	h.Events(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CREATED")
}
