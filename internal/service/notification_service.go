package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/pkg/jobs"
)

const notificationJobType = "notification"

// Notifier delivers fire-and-forget messages to students. Implementations never block the caller.
type Notifier interface {
	Notify(ctx context.Context, studentID string, kind models.NotificationKind, message string)
}

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type jobQueue interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService buffers notifications on a worker queue that writes them to the outbox table.
type NotificationService struct {
	queue   jobQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the notifier on top of a started or soon to be started queue.
func NewNotificationService(queue jobQueue, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, metrics: metrics, logger: logger}
}

// Notify enqueues a notification. Enqueue failures are logged and counted, never returned.
func (s *NotificationService) Notify(ctx context.Context, studentID string, kind models.NotificationKind, message string) {
	if s == nil || s.queue == nil {
		return
	}
	notification := models.Notification{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	job := jobs.Job{ID: notification.ID, Type: notificationJobType, Payload: notification}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotificationDropped()
		s.logger.Warn("notification dropped",
			zap.String("student_id", studentID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// NotificationHandler returns the queue handler that persists notifications to the outbox.
func NotificationHandler(writer notificationWriter) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(models.Notification)
		if !ok {
			return fmt.Errorf("unexpected notification payload %T", job.Payload)
		}
		return writer.Create(ctx, &notification)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, models.NotificationKind, string) {}
