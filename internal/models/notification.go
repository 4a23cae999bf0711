package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Notification tells a user that something they take part in changed.
type Notification struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"userId"`
	Kind       string         `db:"kind" json:"kind"`
	EntityType string         `db:"entity_type" json:"entityType"`
	EntityID   string         `db:"entity_id" json:"entityId"`
	Payload    types.JSONText `db:"payload" json:"payload"`
	ReadAt     *time.Time     `db:"read_at" json:"readAt,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// Entity types referenced by notifications.
const (
	EntityListing    = "listing"
	EntityTradeOffer = "trade_offer"
	EntityHandover   = "handover"
	EntityReport     = "listing_report"
)
