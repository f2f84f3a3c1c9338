package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

func TestCreateBorrowingUsesResolvedPolicy(t *testing.T) {
	fx := newLendingFixture()
	fx.store.addBook("b1", 2, 2)
	fx.store.addStudent(categoryStudent("s1", fullCategory(10)))
	fx.store.rights["b1"] = models.BookLendingRights{BookID: "b1", LoanDuration: 21}

	borrowing, err := fx.lending.CreateBorrowing(context.Background(), dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1", LendingCondition: "good"})
	require.NoError(t, err)
	assert.Equal(t, fx.clock.Now().AddDate(0, 0, 21), borrowing.DueDate)
	assert.Equal(t, models.BorrowingStatusActive, borrowing.Status)
	assert.Equal(t, 1, fx.store.book("b1").AvailableCopies)
	assert.Equal(t, 2, fx.store.book("b1").TotalCopies)
}

func TestCreateBorrowingByISBNWithDefaultPolicy(t *testing.T) {
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.addStudent(categoryStudent("s1", nil))

	borrowing, err := fx.lending.CreateBorrowing(context.Background(), dto.CreateBorrowingRequest{StudentID: "s1", ISBN: "isbn-b1"})
	require.NoError(t, err)
	assert.Equal(t, "b1", borrowing.BookID)
	assert.Equal(t, fx.clock.Now().AddDate(0, 0, 14), borrowing.DueDate)
}

func TestCreateBorrowingRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("out of stock", func(t *testing.T) {
		fx := newLendingFixture()
		fx.store.addBook("b1", 1, 0)
		fx.store.addStudent(categoryStudent("s1", nil))

		_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
		assert.True(t, appErrors.Is(err, appErrors.ErrOutOfStock.Code))
		assert.Empty(t, fx.store.borrowings)
	})

	t.Run("banned", func(t *testing.T) {
		fx := newLendingFixture()
		fx.store.addBook("b1", 1, 1)
		student := categoryStudent("s1", nil)
		until := fx.clock.Now().AddDate(0, 1, 0)
		student.Banned = true
		student.BannedUntil = &until
		fx.store.addStudent(student)

		_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrBanned.Code, appErr.Code)
		assert.Equal(t, &until, appErr.Details["bannedUntil"])
		assert.Equal(t, 1, fx.store.book("b1").AvailableCopies)
	})

	t.Run("limit reached", func(t *testing.T) {
		fx := newLendingFixture()
		for _, id := range []string{"b1", "b2", "b3"} {
			fx.store.addBook(id, 1, 1)
		}
		fx.store.addStudent(categoryStudent("s1", nil))

		for _, id := range []string{"b1", "b2"} {
			_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: id})
			require.NoError(t, err)
		}
		_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b3"})
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrLimitReached.Code, appErr.Code)
		assert.Equal(t, 2, appErr.Details["current"])
		assert.Equal(t, 2, appErr.Details["limit"])
		assert.Equal(t, 1, fx.store.book("b3").AvailableCopies)
	})

	t.Run("same book twice", func(t *testing.T) {
		fx := newLendingFixture()
		fx.store.addBook("b1", 2, 2)
		fx.store.addStudent(categoryStudent("s1", nil))

		_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
		require.NoError(t, err)
		_, err = fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
		assert.True(t, appErrors.Is(err, appErrors.ErrConflict.Code))
		assert.Equal(t, 1, fx.store.book("b1").AvailableCopies)
	})

	t.Run("unknown student", func(t *testing.T) {
		fx := newLendingFixture()
		fx.store.addBook("b1", 1, 1)

		_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "ghost", BookID: "b1"})
		assert.True(t, appErrors.Is(err, appErrors.ErrNotFound.Code))
	})

	t.Run("due date beyond policy", func(t *testing.T) {
		fx := newLendingFixture()
		fx.store.addBook("b1", 1, 1)
		fx.store.addStudent(categoryStudent("s1", nil))
		late := fx.clock.Now().AddDate(0, 0, 30)

		_, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1", DueDate: &late})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
		assert.Equal(t, 1, fx.store.book("b1").AvailableCopies)
	})
}

func TestCreateBorrowingAcceptsEarlierDueDate(t *testing.T) {
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.addStudent(categoryStudent("s1", nil))
	early := fx.clock.Now().AddDate(0, 0, 3)

	borrowing, err := fx.lending.CreateBorrowing(context.Background(), dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1", DueDate: &early})
	require.NoError(t, err)
	assert.Equal(t, early, borrowing.DueDate)
}

func TestLendThenReturnRestoresAvailability(t *testing.T) {
	ctx := context.Background()
	fx := newLendingFixture()
	fx.store.addBook("b1", 3, 2)
	fx.store.addStudent(categoryStudent("s1", nil))

	borrowing, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.store.book("b1").AvailableCopies)

	returned, err := fx.lending.Return(ctx, borrowing.ID, dto.ReturnBorrowingRequest{ReturnCondition: "worn"})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, 2, fx.store.book("b1").AvailableCopies)

	_, err = fx.lending.Return(ctx, borrowing.ID, dto.ReturnBorrowingRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyReturned.Code))
	assert.Equal(t, 2, fx.store.book("b1").AvailableCopies)

	_, err = fx.lending.Return(ctx, "missing", dto.ReturnBorrowingRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound.Code))
}

func TestReturnNeverExceedsTotal(t *testing.T) {
	ctx := context.Background()
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.borrowings["br-stale"] = models.Borrowing{ID: "br-stale", StudentID: "s1", BookID: "b1", Status: models.BorrowingStatusActive, DueDate: fx.clock.Now()}

	_, err := fx.lending.Return(ctx, "br-stale", dto.ReturnBorrowingRequest{})
	require.NoError(t, err)
	assert.Equal(t, CopyCounts{Total: 1, Available: 1}, CopyCounts{Total: fx.store.book("b1").TotalCopies, Available: fx.store.book("b1").AvailableCopies})
}

func TestRenewWithinExtensionLimit(t *testing.T) {
	ctx := context.Background()
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.addStudent(categoryStudent("s1", fullCategory(10)))

	borrowing, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
	require.NoError(t, err)
	start := fx.clock.Now()

	first, err := fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{})
	require.NoError(t, err)
	assert.Equal(t, start.AddDate(0, 0, 15), first.DueDate)
	assert.Equal(t, 1, first.ExtensionCount)

	second, err := fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{})
	require.NoError(t, err)
	assert.Equal(t, start.AddDate(0, 0, 20), second.DueDate)
	assert.Equal(t, 2, second.ExtensionCount)

	_, err = fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrExtensionLimitExceeded.Code, appErr.Code)
	assert.Equal(t, 2, appErr.Details["extensionLimit"])
	assert.Equal(t, 2, fx.store.borrowing(borrowing.ID).ExtensionCount)
}

func TestRenewRejections(t *testing.T) {
	ctx := context.Background()
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.addStudent(categoryStudent("s1", nil))

	borrowing, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
	require.NoError(t, err)

	_, err = fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrExtensionNotAllowed.Code))

	_, err = fx.lending.Return(ctx, borrowing.ID, dto.ReturnBorrowingRequest{})
	require.NoError(t, err)
	_, err = fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition.Code))
}

func TestRenewOverdueBorrowingReactivates(t *testing.T) {
	ctx := context.Background()
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.addStudent(categoryStudent("s1", fullCategory(10)))

	borrowing, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
	require.NoError(t, err)
	fx.clock.Advance(12 * 24 * time.Hour)
	stored := fx.store.borrowing(borrowing.ID)
	stored.Status = models.BorrowingStatusOverdue
	fx.store.borrowings[borrowing.ID] = stored

	renewed, err := fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusActive, renewed.Status)
	assert.Equal(t, borrowing.DueDate.AddDate(0, 0, 5), renewed.DueDate)
}

func TestRenewRequestedDateMustStayInsideWindow(t *testing.T) {
	ctx := context.Background()
	fx := newLendingFixture()
	fx.store.addBook("b1", 1, 1)
	fx.store.addStudent(categoryStudent("s1", fullCategory(10)))

	borrowing, err := fx.lending.CreateBorrowing(ctx, dto.CreateBorrowingRequest{StudentID: "s1", BookID: "b1"})
	require.NoError(t, err)

	tooLate := borrowing.DueDate.AddDate(0, 0, 6)
	_, err = fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{NewDueDate: &tooLate})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))

	wanted := borrowing.DueDate.AddDate(0, 0, 2)
	renewed, err := fx.lending.Renew(ctx, borrowing.ID, dto.RenewBorrowingRequest{NewDueDate: &wanted})
	require.NoError(t, err)
	assert.Equal(t, wanted, renewed.DueDate)
	assert.Equal(t, 1, renewed.ExtensionCount)
}

type borrowingReaderStub struct {
	items []models.BorrowingDetail
}

func (s borrowingReaderStub) List(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, int, error) {
	return s.items, len(s.items), nil
}

func (s borrowingReaderStub) ListForExport(ctx context.Context, filter models.BorrowingFilter) ([]models.BorrowingDetail, error) {
	return s.items, nil
}

func (s borrowingReaderStub) FindDetailByID(ctx context.Context, id string) (*models.BorrowingDetail, error) {
	return nil, sql.ErrNoRows
}

func TestExportBorrowingsAsCSV(t *testing.T) {
	fx := newLendingFixture()
	borrowed := fx.clock.Now()
	reader := borrowingReaderStub{items: []models.BorrowingDetail{{
		Borrowing: models.Borrowing{
			ID:             "br1",
			BorrowDate:     borrowed,
			DueDate:        borrowed.AddDate(0, 0, 14),
			Status:         models.BorrowingStatusOverdue,
			ExtensionCount: 1,
		},
		StudentName: "Ana Souza",
		BookTitle:   "Dune",
		BookISBN:    "978-0441013593",
	}}}
	svc := NewLendingService(fx.engine, reader, nil, nil)

	file, err := svc.Export(context.Background(), models.BorrowingFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "borrowings-"+borrowed.Format("20060102")+".csv", file.Filename)
	assert.Contains(t, string(file.Data), "Ana Souza,Dune,978-0441013593,"+borrowed.Format("2006-01-02"))
	assert.Contains(t, string(file.Data), "OVERDUE,1")

	_, err = svc.Export(context.Background(), models.BorrowingFilter{}, "xlsx")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
}
