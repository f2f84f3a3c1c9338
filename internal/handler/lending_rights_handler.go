package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
	"github.com/noah-isme/library-lending-api/pkg/response"
)

type lendingRightsService interface {
	Get(ctx context.Context, bookID string) (*models.BookLendingRights, error)
	Upsert(ctx context.Context, bookID string, req dto.UpsertLendingRightsRequest) (*models.BookLendingRights, error)
	Delete(ctx context.Context, bookID string) error
}

// LendingRightsHandler administers per-book lending overrides.
type LendingRightsHandler struct {
	service lendingRightsService
}

// NewLendingRightsHandler constructs a LendingRightsHandler.
func NewLendingRightsHandler(svc lendingRightsService) *LendingRightsHandler {
	return &LendingRightsHandler{service: svc}
}

// Get godoc
// @Summary Get book lending rights
// @Tags Lending Rights
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id}/lending-rights [get]
func (h *LendingRightsHandler) Get(c *gin.Context) {
	rights, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rights, nil)
}

// Upsert godoc
// @Summary Set book lending rights
// @Tags Lending Rights
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body dto.UpsertLendingRightsRequest true "Lending rights"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id}/lending-rights [put]
func (h *LendingRightsHandler) Upsert(c *gin.Context) {
	var req dto.UpsertLendingRightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lending rights payload"))
		return
	}
	rights, err := h.service.Upsert(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rights, nil)
}

// Delete godoc
// @Summary Remove book lending rights
// @Tags Lending Rights
// @Param id path string true "Book ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /books/{id}/lending-rights [delete]
func (h *LendingRightsHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
