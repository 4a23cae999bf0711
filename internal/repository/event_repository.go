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

// EventRepository appends to and reads an immutable audit log table. The
// listing and trade offer logs share one shape and differ only by table.
// There is intentionally no update or delete.
type EventRepository struct {
	db       *sqlx.DB
	table    string
	entityFK string
}

// NewListingEventRepository returns the listing_events log.
func NewListingEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db, table: "listing_events", entityFK: "listing_id"}
}

// NewTradeEventRepository returns the trade_events log.
func NewTradeEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db, table: "trade_events", entityFK: "trade_offer_id"}
}

// Append inserts event.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Metadata) == 0 {
		event.Metadata = types.JSONText("{}")
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, %s, event_type, actor_user_id, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`, r.table, r.entityFK)
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		event.ID, event.EntityID, string(event.EventType), event.ActorUserID, event.Metadata, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append %s: %w", r.table, err)
	}
	return nil
}

// ListByEntity returns the log of entityID in insertion order.
func (r *EventRepository) ListByEntity(ctx context.Context, entityID string) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT id, %s AS entity_id, event_type, actor_user_id, metadata, created_at
	FROM %s WHERE %s = $1 ORDER BY created_at, id`, r.entityFK, r.table, r.entityFK)
	events := make([]models.Event, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &events, query, entityID); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return events, nil
}

// Exists reports whether entityID already has an event of eventType.
func (r *EventRepository) Exists(ctx context.Context, entityID string, eventType models.EventType) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND event_type = $2)`, r.table, r.entityFK)
	var exists bool
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &exists, query, entityID, string(eventType)); err != nil {
		return false, fmt.Errorf("check %s: %w", r.table, err)
	}
	return exists, nil
}
