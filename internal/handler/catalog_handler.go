package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/pkg/response"
)

type catalogService interface {
	ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error)
	GetBook(ctx context.Context, id string) (*models.BookDetail, error)
	GetStudent(ctx context.Context, id string) (*dto.StudentLendingStatus, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// CatalogHandler exposes read-only catalog endpoints.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(svc catalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// ListBooks godoc
// @Summary List books
// @Tags Catalog
// @Produce json
// @Param q query string false "Search title, author or ISBN"
// @Param available query bool false "Only books with copies on the shelf"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *CatalogHandler) ListBooks(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.BookFilter{
		Search:    c.Query("q"),
		Page:      page,
		PageSize:  size,
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("available"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.Available = &v
		}
	}
	books, pagination, err := h.service.ListBooks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// GetBook godoc
// @Summary Get book
// @Tags Catalog
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [get]
func (h *CatalogHandler) GetBook(c *gin.Context) {
	book, err := h.service.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// GetStudent godoc
// @Summary Get student lending status
// @Tags Catalog
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *CatalogHandler) GetStudent(c *gin.Context) {
	status, err := h.service.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListCategories godoc
// @Summary List student categories
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}
