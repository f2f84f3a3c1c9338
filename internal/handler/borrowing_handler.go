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

type lendingService interface {
	CreateBorrowing(ctx context.Context, req dto.CreateBorrowingRequest) (*models.Borrowing, error)
	Return(ctx context.Context, id string, req dto.ReturnBorrowingRequest) (*models.Borrowing, error)
	Renew(ctx context.Context, id string, req dto.RenewBorrowingRequest) (*models.Borrowing, error)
	Get(ctx context.Context, id string) (*models.BorrowingDetail, error)
	List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, *models.Pagination, error)
	Export(ctx context.Context, filter models.BorrowingFilter, format string) (*dto.ExportFile, error)
}

// BorrowingHandler exposes loan endpoints.
type BorrowingHandler struct {
	service lendingService
}

// NewBorrowingHandler constructs a BorrowingHandler.
func NewBorrowingHandler(svc lendingService) *BorrowingHandler {
	return &BorrowingHandler{service: svc}
}

// Create godoc
// @Summary Lend a copy
// @Description Lends one copy of a book to a student after ban, limit and stock checks
// @Tags Borrowings
// @Accept json
// @Produce json
// @Param payload body dto.CreateBorrowingRequest true "Borrowing payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrowings [post]
func (h *BorrowingHandler) Create(c *gin.Context) {
	var req dto.CreateBorrowingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid borrowing payload"))
		return
	}
	borrowing, err := h.service.CreateBorrowing(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, borrowing)
}

// Return godoc
// @Summary Return a copy
// @Tags Borrowings
// @Accept json
// @Produce json
// @Param id path string true "Borrowing ID"
// @Param payload body dto.ReturnBorrowingRequest false "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrowings/{id}/return [post]
func (h *BorrowingHandler) Return(c *gin.Context) {
	var req dto.ReturnBorrowingRequest
	if !bindOptionalJSON(c, &req, "invalid return payload") {
		return
	}
	borrowing, err := h.service.Return(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowing, nil)
}

// Renew godoc
// @Summary Renew a loan
// @Description Extends the due date by the policy extension or to a requested earlier date
// @Tags Borrowings
// @Accept json
// @Produce json
// @Param id path string true "Borrowing ID"
// @Param payload body dto.RenewBorrowingRequest false "Renew payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /borrowings/{id}/renew [post]
func (h *BorrowingHandler) Renew(c *gin.Context) {
	var req dto.RenewBorrowingRequest
	if !bindOptionalJSON(c, &req, "invalid renew payload") {
		return
	}
	borrowing, err := h.service.Renew(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowing, nil)
}

// Get godoc
// @Summary Get borrowing
// @Tags Borrowings
// @Produce json
// @Param id path string true "Borrowing ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /borrowings/{id} [get]
func (h *BorrowingHandler) Get(c *gin.Context) {
	borrowing, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := ensureOwner(claimsFromContext(c), borrowing.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowing, nil)
}

// List godoc
// @Summary List borrowings
// @Tags Borrowings
// @Produce json
// @Param studentId query string false "Student ID"
// @Param bookId query string false "Book ID"
// @Param status query string false "ACTIVE, OVERDUE or RETURNED"
// @Param overdue query bool false "Only loans past due"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /borrowings [get]
func (h *BorrowingHandler) List(c *gin.Context) {
	filter := borrowingFilter(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Export godoc
// @Summary Export borrowings
// @Tags Borrowings
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Borrowing status"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /borrowings/export [get]
func (h *BorrowingHandler) Export(c *gin.Context) {
	filter := borrowingFilter(c)
	file, err := h.service.Export(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Download(c, file.Filename, file.ContentType, file.Data)
}

func borrowingFilter(c *gin.Context) models.BorrowingFilter {
	page, size := pageParams(c)
	filter := models.BorrowingFilter{
		StudentID:   c.Query("studentId"),
		BookID:      c.Query("bookId"),
		Status:      models.BorrowingStatus(strings.ToUpper(c.Query("status"))),
		OverdueOnly: c.Query("overdue") == "true",
		Page:        page,
		PageSize:    size,
		SortBy:      c.Query("sortBy"),
		SortOrder:   c.Query("sortOrder"),
	}
	if scope := studentScope(claimsFromContext(c)); scope != "" {
		filter.StudentID = scope
	}
	return filter
}

// bindOptionalJSON binds a body when one is present; lending actions accept an empty body.
func bindOptionalJSON(c *gin.Context, dest interface{}, message string) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
