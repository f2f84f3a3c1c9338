package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-lending-api/internal/dto"
	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/pkg/config"
	"github.com/noah-isme/library-lending-api/pkg/jobs"
)

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type outboxStub struct {
	mu      sync.Mutex
	created []models.Notification
}

func (o *outboxStub) Create(ctx context.Context, notification *models.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, *notification)
	return nil
}

func (o *outboxStub) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.created)
}

func TestNotifyEnqueuesOutboxJob(t *testing.T) {
	queue := &queueStub{}
	svc := NewNotificationService(queue, nil, nil)

	svc.Notify(context.Background(), "s1", models.NotificationReservationReady, "ready")
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, notificationJobType, queue.jobs[0].Type)

	outbox := &outboxStub{}
	require.NoError(t, NotificationHandler(outbox)(context.Background(), queue.jobs[0]))
	require.Len(t, outbox.created, 1)
	assert.Equal(t, "s1", outbox.created[0].StudentID)
	assert.Equal(t, models.NotificationReservationReady, outbox.created[0].Kind)

	err := NotificationHandler(outbox)(context.Background(), jobs.Job{Payload: "garbage"})
	assert.Error(t, err)
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewNotificationService(&queueStub{err: jobs.ErrQueueFull}, metrics, nil)

	svc.Notify(context.Background(), "s1", models.NotificationBorrowingOverdue, "late")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notificationsDropped))
}

func TestNotificationFailureDoesNotFailLending(t *testing.T) {
	store := newMemStore()
	store.addBook("b1", 1, 0)
	store.addStudent(categoryStudent("s1", nil))
	metrics := NewMetricsService()
	notifier := NewNotificationService(&queueStub{err: errors.New("closed")}, metrics, nil)
	engine := NewEngine(store, NewPolicyResolver(config.LendingConfig{}), notifier, metrics, nil)
	reservations := NewReservationService(engine, nil, 0, nil, nil)

	reservation, err := reservations.Create(context.Background(), dto.CreateReservationRequest{StudentID: "s1", BookID: "b1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusAwaitingPickup, reservation.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notificationsDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.lendingOperations.WithLabelValues("create_reservation", "ok")))
}

func TestNotificationQueueDeliversToOutbox(t *testing.T) {
	outbox := &outboxStub{}
	queue := jobs.NewQueue("notifications", NotificationHandler(outbox), jobs.QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond})
	queue.Start(context.Background())
	defer queue.Stop()

	NewNotificationService(queue, nil, nil).Notify(context.Background(), "s1", models.NotificationReservationExpired, "expired")
	assert.Eventually(t, func() bool { return outbox.count() == 1 }, time.Second, 10*time.Millisecond)
}
