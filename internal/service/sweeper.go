package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/models"
)

type expiredReservationLister interface {
	ListExpiredAwaitingPickup(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type reservationExpirer interface {
	Expire(ctx context.Context, id string) (bool, error)
}

type overdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time, limit int) ([]models.Borrowing, error)
}

// SweepResult counts what a sweep changed.
type SweepResult struct {
	Expired int `json:"expired"`
	Overdue int `json:"overdue"`
	Failed  int `json:"failed"`
}

// Sweeper expires lapsed pickups and flags overdue borrowings. Every step is idempotent.
type Sweeper struct {
	reservations expiredReservationLister
	expirer      reservationExpirer
	borrowings   overdueMarker
	notifier     Notifier
	metrics      *MetricsService
	batchSize    int
	logger       *zap.Logger
	now          func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(reservations expiredReservationLister, expirer reservationExpirer, borrowings overdueMarker, notifier Notifier, metrics *MetricsService, batchSize int, logger *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		reservations: reservations,
		expirer:      expirer,
		borrowings:   borrowings,
		notifier:     notifier,
		metrics:      metrics,
		batchSize:    batchSize,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// RunOnce performs a single sweep. Each expiry runs in its own transaction; a failing
// reservation is counted and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	var result SweepResult
	now := s.now()
	seen := make(map[string]struct{})
	for {
		// failed reservations stay expirable, so widen the window to step past them
		limit := s.batchSize + result.Failed
		batch, err := s.reservations.ListExpiredAwaitingPickup(ctx, now, limit)
		if err != nil {
			return result, fmt.Errorf("list expired reservations: %w", err)
		}
		progressed := false
		for _, reservation := range batch {
			if _, done := seen[reservation.ID]; done {
				continue
			}
			seen[reservation.ID] = struct{}{}
			progressed = true
			expired, err := s.expirer.Expire(ctx, reservation.ID)
			if err != nil {
				result.Failed++
				s.logger.Warn("reservation expiry failed", zap.String("reservation_id", reservation.ID), zap.Error(err))
				continue
			}
			if expired {
				result.Expired++
			}
		}
		if len(batch) < limit || !progressed {
			break
		}
	}

	for {
		overdue, err := s.borrowings.MarkOverdue(ctx, now, s.batchSize)
		if err != nil {
			return result, fmt.Errorf("mark overdue borrowings: %w", err)
		}
		for _, borrowing := range overdue {
			s.notifier.Notify(ctx, borrowing.StudentID, models.NotificationBorrowingOverdue,
				fmt.Sprintf("Your borrowing was due on %s", borrowing.DueDate.Format("2006-01-02")))
		}
		result.Overdue += len(overdue)
		if len(overdue) < s.batchSize {
			break
		}
	}

	s.logger.Info("sweep finished",
		zap.Int("expired", result.Expired),
		zap.Int("overdue", result.Overdue),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
