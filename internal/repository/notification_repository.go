package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

// NotificationRepository stores user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if len(n.Payload) == 0 {
		n.Payload = types.JSONText("{}")
	}
	const query = `INSERT INTO notifications (id, user_id, kind, entity_type, entity_id, payload, created_at)
	VALUES (:id, :user_id, :kind, :entity_type, :entity_id, :payload, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByUser returns userID's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, page models.Page) ([]models.Notification, int, error) {
	var where whereBuilder
	where.add("user_id = $%d", userID)

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, `SELECT COUNT(*) FROM notifications`+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	limit, args := where.page(page)
	query := `SELECT id, user_id, kind, entity_type, entity_id, payload, read_at, created_at FROM notifications` +
		where.String() + ` ORDER BY created_at DESC, id` + limit
	items := make([]models.Notification, 0)
	if err := sqlx.SelectContext(ctx, conn, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}
