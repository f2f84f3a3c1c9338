package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type catalogBookRepository interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.BookDetail, error)
}

type categoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
}

// CatalogService serves catalog, student and category reads.
type CatalogService struct {
	books      catalogBookRepository
	students   policyStudentReader
	categories categoryRepository
	policies   *PolicyService
	logger     *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(books catalogBookRepository, students policyStudentReader, categories categoryRepository, policies *PolicyService, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{books: books, students: students, categories: categories, policies: policies, logger: logger}
}

// ListBooks searches the catalog.
func (s *CatalogService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.books.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	return books, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetBook returns a book with its lending context.
func (s *CatalogService) GetBook(ctx context.Context, id string) (*models.BookDetail, error) {
	book, err := s.books.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// GetStudent returns a student with the category and the borrowing limit status.
func (s *CatalogService) GetStudent(ctx context.Context, id string) (*dto.StudentLendingStatus, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	limit, err := s.policies.limitFor(ctx, student)
	if err != nil {
		return nil, err
	}
	return &dto.StudentLendingStatus{
		Student:  student.Student,
		Category: student.Category(),
		Limit:    limit,
	}, nil
}

// ListCategories returns every student category.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}
