package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/internal/repository"
	"github.com/noah-isme/library-lending-api/pkg/config"
)

// memStore is an in-memory LendingTx. WithinTx serializes transactions and restores the
// previous state when fn fails.
type memStore struct {
	mu           sync.Mutex
	seq          int
	books        map[string]models.Book
	students     map[string]models.StudentDetail
	rights       map[string]models.BookLendingRights
	borrowings   map[string]models.Borrowing
	reservations map[string]models.Reservation
	inserted     map[string]int
	events       []models.ReservationEvent
}

func newMemStore() *memStore {
	return &memStore{
		books:        map[string]models.Book{},
		students:     map[string]models.StudentDetail{},
		rights:       map[string]models.BookLendingRights{},
		borrowings:   map[string]models.Borrowing{},
		reservations: map[string]models.Reservation{},
		inserted:     map[string]int{},
	}
}

type memSnapshot struct {
	seq          int
	books        map[string]models.Book
	borrowings   map[string]models.Borrowing
	reservations map[string]models.Reservation
	inserted     map[string]int
	events       []models.ReservationEvent
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) WithinTx(ctx context.Context, fn func(repository.LendingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		seq:          s.seq,
		books:        copyMap(s.books),
		borrowings:   copyMap(s.borrowings),
		reservations: copyMap(s.reservations),
		inserted:     copyMap(s.inserted),
		events:       append([]models.ReservationEvent(nil), s.events...),
	}
	if err := fn(s); err != nil {
		s.seq = snap.seq
		s.books = snap.books
		s.borrowings = snap.borrowings
		s.reservations = snap.reservations
		s.inserted = snap.inserted
		s.events = snap.events
		return err
	}
	return nil
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addBook(id string, total, available int) {
	s.books[id] = models.Book{ID: id, Title: "Book " + id, ISBN: "isbn-" + id, TotalCopies: total, AvailableCopies: available}
}

func (s *memStore) addStudent(student models.StudentDetail) {
	s.students[student.ID] = student
}

func (s *memStore) book(id string) models.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[id]
}

func (s *memStore) reservation(id string) models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[id]
}

func (s *memStore) borrowing(id string) models.Borrowing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.borrowings[id]
}

func (s *memStore) eventsFor(id string) []models.ReservationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ReservationEvent
	for _, event := range s.events {
		if event.ReservationID == id {
			out = append(out, event)
		}
	}
	return out
}

func (s *memStore) LockBook(ctx context.Context, id string) (*models.Book, error) {
	book, ok := s.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &book, nil
}

func (s *memStore) LockBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	for _, book := range s.books {
		if book.ISBN == isbn {
			found := book
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) LockStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	return s.FindStudent(ctx, id)
}

func (s *memStore) FindStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (s *memStore) FindLendingRights(ctx context.Context, bookID string) (*models.BookLendingRights, error) {
	rights, ok := s.rights[bookID]
	if !ok {
		return nil, nil
	}
	return &rights, nil
}

func (s *memStore) TakeCopy(ctx context.Context, bookID string) (bool, error) {
	book := s.books[bookID]
	if book.AvailableCopies < 1 {
		return false, nil
	}
	book.AvailableCopies--
	s.books[bookID] = book
	return true, nil
}

func (s *memStore) ReleaseCopy(ctx context.Context, bookID string) error {
	book := s.books[bookID]
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	s.books[bookID] = book
	return nil
}

func (s *memStore) SetCopies(ctx context.Context, bookID string, total, available int) error {
	book := s.books[bookID]
	book.TotalCopies = total
	book.AvailableCopies = available
	s.books[bookID] = book
	return nil
}

func (s *memStore) countBorrowings(match func(models.Borrowing) bool) int {
	count := 0
	for _, b := range s.borrowings {
		if b.IsOpen() && match(b) {
			count++
		}
	}
	return count
}

func (s *memStore) CountOpenBorrowings(ctx context.Context, studentID string) (int, error) {
	return s.countBorrowings(func(b models.Borrowing) bool { return b.StudentID == studentID }), nil
}

func (s *memStore) CountOpenBorrowingsForBook(ctx context.Context, bookID string) (int, error) {
	return s.countBorrowings(func(b models.Borrowing) bool { return b.BookID == bookID }), nil
}

func (s *memStore) HasOpenBorrowing(ctx context.Context, studentID, bookID string) (bool, error) {
	return s.countBorrowings(func(b models.Borrowing) bool { return b.StudentID == studentID && b.BookID == bookID }) > 0, nil
}

func (s *memStore) EarliestDueBorrower(ctx context.Context, bookID string) (*string, error) {
	var earliest *models.Borrowing
	for _, b := range s.borrowings {
		if !b.IsOpen() || b.BookID != bookID {
			continue
		}
		if earliest == nil || b.DueDate.Before(earliest.DueDate) {
			candidate := b
			earliest = &candidate
		}
	}
	if earliest == nil {
		return nil, nil
	}
	id := earliest.StudentID
	return &id, nil
}

func (s *memStore) CreateBorrowing(ctx context.Context, borrowing *models.Borrowing) error {
	if s.countBorrowings(func(b models.Borrowing) bool {
		return b.StudentID == borrowing.StudentID && b.BookID == borrowing.BookID
	}) > 0 {
		return fmt.Errorf("duplicate open borrowing")
	}
	if borrowing.ID == "" {
		borrowing.ID = s.nextID("borrowing")
	}
	borrowing.UpdatedAt = borrowing.CreatedAt
	s.borrowings[borrowing.ID] = *borrowing
	return nil
}

func (s *memStore) FindBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	borrowing, ok := s.borrowings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &borrowing, nil
}

func (s *memStore) LockBorrowing(ctx context.Context, id string) (*models.Borrowing, error) {
	return s.FindBorrowing(ctx, id)
}

func (s *memStore) MarkBorrowingReturned(ctx context.Context, id, returnCondition string, returnedAt time.Time) error {
	borrowing, ok := s.borrowings[id]
	if !ok || borrowing.Status == models.BorrowingStatusReturned {
		return sql.ErrNoRows
	}
	borrowing.Status = models.BorrowingStatusReturned
	borrowing.ReturnCondition = &returnCondition
	borrowing.ReturnDate = &returnedAt
	s.borrowings[id] = borrowing
	return nil
}

func (s *memStore) UpdateBorrowingDueDate(ctx context.Context, id string, dueDate time.Time, extensionCount int, status models.BorrowingStatus) error {
	borrowing := s.borrowings[id]
	borrowing.DueDate = dueDate
	borrowing.ExtensionCount = extensionCount
	borrowing.Status = status
	s.borrowings[id] = borrowing
	return nil
}

func (s *memStore) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = s.nextID("reservation")
	}
	s.inserted[reservation.ID] = s.seq
	s.reservations[reservation.ID] = *reservation
	return nil
}

func (s *memStore) FindReservation(ctx context.Context, id string) (*models.Reservation, error) {
	reservation, ok := s.reservations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &reservation, nil
}

func (s *memStore) LockReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.FindReservation(ctx, id)
}

func (s *memStore) NextHeldReservation(ctx context.Context, bookID string) (*models.Reservation, error) {
	var next *models.Reservation
	for _, r := range s.reservations {
		if r.BookID != bookID || r.Status != models.ReservationStatusHeld {
			continue
		}
		if next == nil || r.CreatedAt.Before(next.CreatedAt) ||
			(r.CreatedAt.Equal(next.CreatedAt) && s.inserted[r.ID] < s.inserted[next.ID]) {
			candidate := r
			next = &candidate
		}
	}
	return next, nil
}

func (s *memStore) countReservations(bookID string, statuses ...models.ReservationStatus) int {
	count := 0
	for _, r := range s.reservations {
		if r.BookID != bookID {
			continue
		}
		for _, status := range statuses {
			if r.Status == status {
				count++
			}
		}
	}
	return count
}

func (s *memStore) CountOpenReservations(ctx context.Context, bookID string) (int, error) {
	return s.countReservations(bookID, models.ReservationStatusHeld, models.ReservationStatusAwaitingPickup), nil
}

func (s *memStore) CountAwaitingPickup(ctx context.Context, bookID string) (int, error) {
	return s.countReservations(bookID, models.ReservationStatusAwaitingPickup), nil
}

func (s *memStore) HasOpenReservation(ctx context.Context, studentID, bookID string) (bool, error) {
	for _, r := range s.reservations {
		if r.StudentID == studentID && r.BookID == bookID && r.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) UpdateReservation(ctx context.Context, reservation *models.Reservation) error {
	if _, ok := s.reservations[reservation.ID]; !ok {
		return sql.ErrNoRows
	}
	s.reservations[reservation.ID] = *reservation
	return nil
}

func (s *memStore) DeleteReservation(ctx context.Context, id string) error {
	delete(s.reservations, id)
	kept := s.events[:0]
	for _, event := range s.events {
		if event.ReservationID != id {
			kept = append(kept, event)
		}
	}
	s.events = kept
	return nil
}

func (s *memStore) AppendReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	if event.ID == "" {
		event.ID = s.nextID("event")
	}
	s.events = append(s.events, *event)
	return nil
}

// ListExpiredAwaitingPickup lets the store double as the sweeper's reservation lister.
func (s *memStore) ListExpiredAwaitingPickup(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if expirable(r, now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.inserted[out[i].ID] < s.inserted[out[j].ID] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordedNotification struct {
	studentID string
	kind      models.NotificationKind
	message   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, studentID string, kind models.NotificationKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recordedNotification{studentID: studentID, kind: kind, message: message})
}

func (n *recordingNotifier) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(n.sent))
	for _, sent := range n.sent {
		out = append(out, sent.kind)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type lendingFixture struct {
	store        *memStore
	clock        *testClock
	notifier     *recordingNotifier
	engine       *Engine
	lending      *LendingService
	reservations *ReservationService
	inventory    *InventoryService
}

func newLendingFixture() *lendingFixture {
	store := newMemStore()
	clock := newTestClock()
	notifier := &recordingNotifier{}
	engine := NewEngine(store, NewPolicyResolver(config.LendingConfig{}), notifier, nil, nil).WithClock(clock.Now)
	return &lendingFixture{
		store:        store,
		clock:        clock,
		notifier:     notifier,
		engine:       engine,
		lending:      NewLendingService(engine, nil, nil, nil),
		reservations: NewReservationService(engine, nil, 0, nil, nil),
		inventory:    NewInventoryService(engine, nil, nil),
	}
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func categoryStudent(id string, category *models.Category) models.StudentDetail {
	student := models.StudentDetail{Student: models.Student{ID: id, Name: "Student " + id}}
	if category != nil {
		student.CategoryID = strPtr(category.ID)
		student.CategoryName = strPtr(category.Name)
		student.CategoryBorrowingLimit = category.BorrowingLimit
		student.CategoryLoanDuration = category.LoanDuration
		student.CategoryLoanExtensionAllowed = category.LoanExtensionAllowed
		student.CategoryExtensionLimit = category.ExtensionLimit
		student.CategoryExtensionDuration = category.ExtensionDuration
	}
	return student
}
