package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
	"github.com/noah-isme/library-lending-api/pkg/response"
)

type policyService interface {
	EffectivePolicy(ctx context.Context, bookID, studentID string) (*models.LendingPolicy, error)
	LimitStatus(ctx context.Context, studentID string) (*models.LimitStatus, error)
}

// PolicyHandler exposes effective policy and borrowing limit lookups.
type PolicyHandler struct {
	service policyService
}

// NewPolicyHandler constructs a PolicyHandler.
func NewPolicyHandler(svc policyService) *PolicyHandler {
	return &PolicyHandler{service: svc}
}

// EffectivePolicy godoc
// @Summary Effective lending policy
// @Description Resolves the loan policy for a book and student. Book rights win over the student category, which wins over the defaults.
// @Tags Policies
// @Produce json
// @Param id path string true "Book ID"
// @Param studentId query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id}/policy [get]
func (h *PolicyHandler) EffectivePolicy(c *gin.Context) {
	studentID := c.Query("studentId")
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
		return
	}
	policy, err := h.service.EffectivePolicy(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// LimitStatus godoc
// @Summary Borrowing limit status
// @Tags Policies
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/limit-status [get]
func (h *PolicyHandler) LimitStatus(c *gin.Context) {
	status, err := h.service.LimitStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
