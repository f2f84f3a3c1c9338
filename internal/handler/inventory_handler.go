package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/dto"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
	"github.com/noah-isme/library-lending-api/pkg/response"
)

type inventoryService interface {
	Adjust(ctx context.Context, req dto.AdjustCopiesRequest) (*dto.AdjustCopiesResult, error)
}

// InventoryHandler exposes copy count adjustments.
type InventoryHandler struct {
	service inventoryService
}

// NewInventoryHandler constructs an InventoryHandler.
func NewInventoryHandler(svc inventoryService) *InventoryHandler {
	return &InventoryHandler{service: svc}
}

// Adjust godoc
// @Summary Add or remove copies
// @Description Adjusts total and available copies. Added copies are handed to waiting reservations first.
// @Tags Inventory
// @Accept json
// @Produce json
// @Param payload body dto.AdjustCopiesRequest true "Adjustment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /inventory/adjust [post]
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid adjustment payload"))
		return
	}
	result, err := h.service.Adjust(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
