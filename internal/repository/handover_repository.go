package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

const handoverColumns = `id, requester_user_id, listing_id, trade_offer_id, status, notes, verified_by,
	verified_at, rejection_reason, created_at, updated_at`

var handoverTransitionColumns = columns("verified_by", "verified_at", "rejection_reason")

// HandoverRepository persists handover verification requests.
type HandoverRepository struct {
	db *sqlx.DB
}

// NewHandoverRepository constructs the repository.
func NewHandoverRepository(db *sqlx.DB) *HandoverRepository {
	return &HandoverRepository{db: db}
}

// Create inserts a handover. A second pending handover for the same parent
// fails with a unique violation from the partial index.
func (r *HandoverRepository) Create(ctx context.Context, h *models.Handover) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Status == "" {
		h.Status = models.HandoverPending
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	h.UpdatedAt = h.CreatedAt

	const query = `INSERT INTO handovers
	(id, requester_user_id, listing_id, trade_offer_id, status, notes, created_at, updated_at)
	VALUES (:id, :requester_user_id, :listing_id, :trade_offer_id, :status, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, h); err != nil {
		return fmt.Errorf("create handover: %w", err)
	}
	return nil
}

// FindByID fetches a handover by id.
func (r *HandoverRepository) FindByID(ctx context.Context, id string) (*models.Handover, error) {
	var h models.Handover
	query := `SELECT ` + handoverColumns + ` FROM handovers WHERE id = $1`
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &h, query, id); err != nil {
		return nil, err
	}
	return &h, nil
}

// HasPending reports whether the parent already has a handover awaiting
// verification. Exactly one of listingID and tradeOfferID is expected.
func (r *HandoverRepository) HasPending(ctx context.Context, listingID, tradeOfferID *string) (bool, error) {
	column, id := "listing_id", listingID
	if listingID == nil {
		column, id = "trade_offer_id", tradeOfferID
	}
	if id == nil {
		return false, nil
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM handovers WHERE %s = $1 AND status = $2)`, column)
	var exists bool
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &exists, query, *id, string(models.HandoverPending)); err != nil {
		return false, fmt.Errorf("check pending handover: %w", err)
	}
	return exists, nil
}

// List returns handovers, oldest first so the verification queue drains FIFO.
func (r *HandoverRepository) List(ctx context.Context, filter models.HandoverFilter) ([]models.Handover, int, error) {
	var where whereBuilder
	if filter.Status != "" {
		where.add("status = $%d", string(filter.Status))
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, `SELECT COUNT(*) FROM handovers`+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count handovers: %w", err)
	}

	limit, args := where.page(filter.Page)
	query := `SELECT ` + handoverColumns + ` FROM handovers` + where.String() + ` ORDER BY created_at, id` + limit
	items := make([]models.Handover, 0)
	if err := sqlx.SelectContext(ctx, conn, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list handovers: %w", err)
	}
	return items, total, nil
}

// UpdateStatus performs a conditional status write.
func (r *HandoverRepository) UpdateStatus(ctx context.Context, change lifecycle.Change[models.HandoverStatus]) (int64, error) {
	query, args, err := buildStatusUpdate("handovers", handoverTransitionColumns, change)
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, database.Conn(ctx, r.db), query, args...)
}

// StatusOf returns the stored status.
func (r *HandoverRepository) StatusOf(ctx context.Context, id string) (models.HandoverStatus, error) {
	var status models.HandoverStatus
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &status, `SELECT status FROM handovers WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}
