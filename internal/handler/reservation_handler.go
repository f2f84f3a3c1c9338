package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
	"github.com/noah-isme/library-lending-api/pkg/response"
)

type reservationService interface {
	Create(ctx context.Context, req dto.CreateReservationRequest, actor *models.JWTClaims) (*models.Reservation, error)
	Checkout(ctx context.Context, id string, req dto.CheckoutReservationRequest, actor *models.JWTClaims) (*dto.CheckoutResult, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.Reservation, error)
	Extend(ctx context.Context, id string, req dto.ExtendReservationRequest, actor *models.JWTClaims) (*models.Reservation, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.ReservationDetail, error)
	List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, *models.Pagination, error)
	Queue(ctx context.Context, bookID string) ([]models.ReservationDetail, error)
	Events(ctx context.Context, id string) ([]models.ReservationEvent, error)
}

// ReservationHandler exposes the reservation queue endpoints.
type ReservationHandler struct {
	service reservationService
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(svc reservationService) *ReservationHandler {
	return &ReservationHandler{service: svc}
}

// Create godoc
// @Summary Reserve a book
// @Description Queues a student for a book with no copy on the shelf. Students may only reserve for themselves.
// @Tags Reservations
// @Accept json
// @Produce json
// @Param payload body dto.CreateReservationRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload"))
		return
	}
	claims := claimsFromContext(c)
	if err := ensureOwner(claims, req.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	reservation, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reservation)
}

// Checkout godoc
// @Summary Pick up a reserved copy
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.CheckoutReservationRequest false "Checkout payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /reservations/{id}/checkout [post]
func (h *ReservationHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutReservationRequest
	if !bindOptionalJSON(c, &req, "invalid checkout payload") {
		return
	}
	result, err := h.service.Checkout(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a reservation
// @Description Cancels an open reservation. A set-aside copy passes to the next reservation in the queue.
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	id := c.Param("id")
	if studentScope(claims) != "" {
		current, err := h.service.Get(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := ensureOwner(claims, current.StudentID); err != nil {
			response.Error(c, err)
			return
		}
	}
	reservation, err := h.service.Cancel(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Extend godoc
// @Summary Extend a pickup deadline
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.ExtendReservationRequest true "Extension payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id}/extend [post]
func (h *ReservationHandler) Extend(c *gin.Context) {
	var req dto.ExtendReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid extension payload"))
		return
	}
	reservation, err := h.service.Extend(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Delete godoc
// @Summary Delete a cancelled reservation
// @Tags Reservations
// @Param id path string true "Reservation ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id} [delete]
func (h *ReservationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Get reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	reservation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := ensureOwner(claimsFromContext(c), reservation.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// List godoc
// @Summary List reservations
// @Tags Reservations
// @Produce json
// @Param studentId query string false "Student ID"
// @Param bookId query string false "Book ID"
// @Param status query string false "HELD, AWAITING_PICKUP, CANCELLED or CHECKED_OUT"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.ReservationFilter{
		StudentID: c.Query("studentId"),
		BookID:    c.Query("bookId"),
		Status:    models.ReservationStatus(strings.ToUpper(c.Query("status"))),
		Page:      page,
		PageSize:  size,
		SortOrder: c.Query("sortOrder"),
	}
	if scope := studentScope(claimsFromContext(c)); scope != "" {
		filter.StudentID = scope
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Queue godoc
// @Summary Reservation queue of a book
// @Description Open reservations in FIFO order
// @Tags Reservations
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Router /books/{id}/queue [get]
func (h *ReservationHandler) Queue(c *gin.Context) {
	items, err := h.service.Queue(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Events godoc
// @Summary Reservation audit trail
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/events [get]
func (h *ReservationHandler) Events(c *gin.Context) {
	events, err := h.service.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
