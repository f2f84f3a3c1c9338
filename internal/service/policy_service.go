package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

type policyBookReader interface {
	FindByID(ctx context.Context, id string) (*models.Book, error)
}

type policyStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type lendingRightsReader interface {
	FindByBookID(ctx context.Context, bookID string) (*models.BookLendingRights, error)
}

type openBorrowingCounter interface {
	CountOpenByStudent(ctx context.Context, studentID string) (int, error)
}

// PolicyService answers read-only policy and limit questions outside a lending transaction.
type PolicyService struct {
	books      policyBookReader
	students   policyStudentReader
	rights     lendingRightsReader
	borrowings openBorrowingCounter
	resolver   *PolicyResolver
	cache      *PolicyCache
	logger     *zap.Logger
	now        func() time.Time
}

// NewPolicyService constructs a PolicyService. cache may be nil.
func NewPolicyService(books policyBookReader, students policyStudentReader, rights lendingRightsReader, borrowings openBorrowingCounter, resolver *PolicyResolver, cache *PolicyCache, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		books:      books,
		students:   students,
		rights:     rights,
		borrowings: borrowings,
		resolver:   resolver,
		cache:      cache,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for ban checks.
func (s *PolicyService) WithClock(now func() time.Time) *PolicyService {
	if now != nil {
		s.now = now
	}
	return s
}

// EffectivePolicy resolves the lending policy a student would get for a book.
func (s *PolicyService) EffectivePolicy(ctx context.Context, bookID, studentID string) (*models.LendingPolicy, error) {
	if cached, hit := s.cache.Lookup(ctx, bookID, studentID); hit {
		return &cached, nil
	}

	if err := s.read(ctx, "find book", func() error {
		_, err := s.books.FindByID(ctx, bookID)
		return err
	}); err != nil {
		return nil, s.translate(err, "book", "failed to load book")
	}

	var student *models.StudentDetail
	if err := s.read(ctx, "find student", func() (err error) {
		student, err = s.students.FindByID(ctx, studentID)
		return err
	}); err != nil {
		return nil, s.translate(err, "student", "failed to load student")
	}

	var rights *models.BookLendingRights
	if err := s.read(ctx, "find lending rights", func() (err error) {
		rights, err = s.rights.FindByBookID(ctx, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			rights, err = nil, nil
		}
		return err
	}); err != nil {
		return nil, s.translate(err, "lending rights", "failed to load lending rights")
	}

	policy, err := s.resolver.Resolve(rights, student.Category())
	if err != nil {
		return nil, err
	}
	s.cache.Store(ctx, bookID, studentID, policy)
	return &policy, nil
}

// LimitStatus reports whether a student may borrow one more book.
func (s *PolicyService) LimitStatus(ctx context.Context, studentID string) (*models.LimitStatus, error) {
	var student *models.StudentDetail
	if err := s.read(ctx, "find student", func() (err error) {
		student, err = s.students.FindByID(ctx, studentID)
		return err
	}); err != nil {
		return nil, s.translate(err, "student", "failed to load student")
	}
	status, err := s.limitFor(ctx, student)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *PolicyService) limitFor(ctx context.Context, student *models.StudentDetail) (models.LimitStatus, error) {
	limit, err := s.resolver.BorrowingLimit(student.Category())
	if err != nil {
		return models.LimitStatus{}, err
	}
	var current int
	if err := s.read(ctx, "count open borrowings", func() (err error) {
		current, err = s.borrowings.CountOpenByStudent(ctx, student.ID)
		return err
	}); err != nil {
		return models.LimitStatus{}, s.translate(err, "student", "failed to count borrowings")
	}
	return EvaluateLimit(student.Student, current, limit, s.now()), nil
}

// read runs an idempotent lookup, retrying once when it fails for reasons other than a missing row.
func (s *PolicyService) read(ctx context.Context, what string, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, sql.ErrNoRows) || ctx.Err() != nil {
		return err
	}
	s.logger.Warn("read failed, retrying", zap.String("operation", what), zap.Error(err))
	if retryErr := fn(); retryErr != nil {
		return fmt.Errorf("%s: %w", what, retryErr)
	}
	return nil
}

func (s *PolicyService) translate(err error, entity, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
