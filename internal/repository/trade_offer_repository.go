package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

const tradeOfferColumns = `id, creator_user_id, receiver_user_id, listing_id, message, offered_items, requested_items,
	status, expires_at, responded_at, created_at, updated_at`

var tradeTransitionColumns = columns("responded_at")

// TradeOfferRepository persists trade offers.
type TradeOfferRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewTradeOfferRepository constructs the repository.
func NewTradeOfferRepository(db *sqlx.DB) *TradeOfferRepository {
	return &TradeOfferRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used to derive lazily expired statuses.
func (r *TradeOfferRepository) WithClock(now func() time.Time) *TradeOfferRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Create inserts a trade offer.
func (r *TradeOfferRepository) Create(ctx context.Context, offer *models.TradeOffer) error {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if offer.Status == "" {
		offer.Status = models.TradePending
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = r.now()
	}
	offer.UpdatedAt = offer.CreatedAt
	if len(offer.OfferedItems) == 0 {
		offer.OfferedItems = types.JSONText("[]")
	}
	if len(offer.RequestedItems) == 0 {
		offer.RequestedItems = types.JSONText("[]")
	}

	const query = `INSERT INTO trade_offers
	(id, creator_user_id, receiver_user_id, listing_id, message, offered_items, requested_items, status, expires_at, created_at, updated_at)
	VALUES (:id, :creator_user_id, :receiver_user_id, :listing_id, :message, :offered_items, :requested_items, :status, :expires_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, offer); err != nil {
		return fmt.Errorf("create trade offer: %w", err)
	}
	return nil
}

// FindByID fetches the stored row. Callers apply lazy expiry themselves.
func (r *TradeOfferRepository) FindByID(ctx context.Context, id string) (*models.TradeOffer, error) {
	var offer models.TradeOffer
	query := `SELECT ` + tradeOfferColumns + ` FROM trade_offers WHERE id = $1`
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &offer, query, id); err != nil {
		return nil, err
	}
	return &offer, nil
}

// List returns one user's offers in the requested box, newest first.
func (r *TradeOfferRepository) List(ctx context.Context, filter models.TradeOfferFilter) ([]models.TradeOffer, int, error) {
	var where whereBuilder
	switch filter.Box {
	case models.TradeBoxSent:
		where.add("creator_user_id = $%d", filter.UserID)
	case models.TradeBoxReceived:
		where.add("receiver_user_id = $%d", filter.UserID)
	default:
		where.add("(creator_user_id = $%[1]d OR receiver_user_id = $%[1]d)", filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		where.add("status = ANY($%d)", pq.Array(stringsOf(filter.Statuses)))
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, `SELECT COUNT(*) FROM trade_offers`+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count trade offers: %w", err)
	}

	limit, args := where.page(filter.Page)
	query := `SELECT ` + tradeOfferColumns + ` FROM trade_offers` + where.String() + ` ORDER BY created_at DESC, id` + limit
	offers := make([]models.TradeOffer, 0)
	if err := sqlx.SelectContext(ctx, conn, &offers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list trade offers: %w", err)
	}
	return offers, total, nil
}

// ListLapsedIDs returns PENDING offers involving userID whose deadline passed.
func (r *TradeOfferRepository) ListLapsedIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	const query = `SELECT id FROM trade_offers
	WHERE status = $1 AND expires_at < $2 AND (creator_user_id = $3 OR receiver_user_id = $3)
	ORDER BY expires_at`
	ids := make([]string, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &ids, query, string(models.TradePending), now, userID); err != nil {
		return nil, fmt.Errorf("list lapsed trade offers: %w", err)
	}
	return ids, nil
}

// UpdateStatus performs a conditional status write. Moving to EXPIRED also
// requires the deadline to have passed; any other target requires it not to
// have, so a lapsed offer can never be accepted.
func (r *TradeOfferRepository) UpdateStatus(ctx context.Context, change lifecycle.Change[models.TradeOfferStatus]) (int64, error) {
	query, args, err := buildStatusUpdate("trade_offers", tradeTransitionColumns, change)
	if err != nil {
		return 0, err
	}
	args = append(args, change.At)
	if change.To == models.TradeExpired {
		query += fmt.Sprintf(" AND expires_at < $%d", len(args))
	} else {
		query += fmt.Sprintf(" AND expires_at > $%d", len(args))
	}
	return execAffected(ctx, database.Conn(ctx, r.db), query, args...)
}

// StatusOf returns the status a reader observes now, folding in expiry.
func (r *TradeOfferRepository) StatusOf(ctx context.Context, id string) (models.TradeOfferStatus, error) {
	var row struct {
		Status    models.TradeOfferStatus `db:"status"`
		ExpiresAt time.Time               `db:"expires_at"`
	}
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &row, `SELECT status, expires_at FROM trade_offers WHERE id = $1`, id); err != nil {
		return "", err
	}
	return models.EffectiveTradeStatus(row.Status, row.ExpiresAt, r.now()), nil
}
