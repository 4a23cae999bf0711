package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
	"github.com/noah-isme/card-market-api/pkg/jobs"
)

const notificationJobType = "notification.deliver"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, page models.Page) ([]models.Notification, int, error)
}

type notificationQueue interface {
	Start(ctx context.Context)
	Stop()
	TryEnqueue(job jobs.Job) error
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Workers    int
	Retries    int
	BufferSize int
	RetryDelay time.Duration
}

// NotificationService persists notifications off the request path. Notify
// never blocks and never fails the caller.
type NotificationService struct {
	repo    notificationRepository
	queue   notificationQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService wires the service to an in-process job queue.
func NewNotificationService(repo notificationRepository, config NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, metrics: metrics, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    config.Workers,
		BufferSize: config.BufferSize,
		MaxRetries: config.Retries,
		RetryDelay: config.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains nothing; queued notifications are dropped.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify queues n for delivery.
func (s *NotificationService) Notify(_ context.Context, n models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n}); err != nil {
		s.metrics.ObserveNotification(n.Kind, "dropped")
		s.logger.Warn("notification dropped",
			zap.String("kind", n.Kind),
			zap.String("user_id", n.UserID),
			zap.String("entity_id", n.EntityID),
			zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		s.metrics.ObserveNotification(n.Kind, "failed")
		return err
	}
	s.metrics.ObserveNotification(n.Kind, "delivered")
	return nil
}

// List returns actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, query dto.PageQuery, actor *models.JWTClaims) ([]models.Notification, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.ListByUser(ctx, actor.UserID, page)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list notifications")
	}
	return items, page.Pagination(total), nil
}
