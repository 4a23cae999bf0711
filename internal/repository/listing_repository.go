package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

const listingColumns = `id, user_id, card_id, title, description, price, currency, quantity, language,
	condition, status, published_at, sold_at, archived_at, created_at, updated_at`

var listingTransitionColumns = columns("published_at", "sold_at", "archived_at")

// ListingRepository persists listings.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository constructs the repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a listing row.
func (r *ListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.Status == "" {
		listing.Status = models.ListingDraft
	}
	now := time.Now().UTC()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = listing.CreatedAt

	const query = `INSERT INTO listings
	(id, user_id, card_id, title, description, price, currency, quantity, language, condition, status, created_at, updated_at)
	VALUES (:id, :user_id, :card_id, :title, :description, :price, :currency, :quantity, :language, :condition, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, listing); err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

// FindByID fetches a listing by id.
func (r *ListingRepository) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &listing, query, id); err != nil {
		return nil, err
	}
	return &listing, nil
}

// List returns listings matching filter, newest first, with the total count.
func (r *ListingRepository) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, int, error) {
	var where whereBuilder
	if len(filter.Statuses) > 0 {
		where.add("status = ANY($%d)", pq.Array(stringsOf(filter.Statuses)))
	}
	if filter.CardID != "" {
		where.add("card_id = $%d", filter.CardID)
	}
	if filter.SellerID != "" {
		where.add("user_id = $%d", filter.SellerID)
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, `SELECT COUNT(*) FROM listings`+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	limit, args := where.page(filter.Page)
	query := `SELECT ` + listingColumns + ` FROM listings` + where.String() + ` ORDER BY created_at DESC, id` + limit
	listings := make([]models.Listing, 0)
	if err := sqlx.SelectContext(ctx, conn, &listings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	return listings, total, nil
}

// UpdateDraft applies patch to a DRAFT listing owned by ownerID. Zero affected
// rows means the listing is missing, foreign, or no longer a draft.
func (r *ListingRepository) UpdateDraft(ctx context.Context, id, ownerID string, patch models.ListingPatch, at time.Time) (int64, error) {
	args := []interface{}{at}
	sets := []string{"updated_at = $1"}
	assign := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		assign("title", *patch.Title)
	}
	if patch.Description != nil {
		assign("description", *patch.Description)
	}
	if patch.Price != nil {
		assign("price", *patch.Price)
	}
	if patch.Currency != nil {
		assign("currency", *patch.Currency)
	}
	if patch.Quantity != nil {
		assign("quantity", *patch.Quantity)
	}
	if patch.Language != nil {
		assign("language", *patch.Language)
	}
	if patch.Condition != nil {
		assign("condition", string(*patch.Condition))
	}
	args = append(args, id, ownerID, string(models.ListingDraft))
	query := fmt.Sprintf("UPDATE listings SET %s WHERE id = $%d AND user_id = $%d AND status = $%d",
		strings.Join(sets, ", "), len(args)-2, len(args)-1, len(args))

	n, err := execAffected(ctx, database.Conn(ctx, r.db), query, args...)
	if err != nil {
		return 0, fmt.Errorf("update draft listing: %w", err)
	}
	return n, nil
}

// UpdateStatus performs a conditional status write.
func (r *ListingRepository) UpdateStatus(ctx context.Context, change lifecycle.Change[models.ListingStatus]) (int64, error) {
	query, args, err := buildStatusUpdate("listings", listingTransitionColumns, change)
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, database.Conn(ctx, r.db), query, args...)
}

// StatusOf returns the stored status.
func (r *ListingRepository) StatusOf(ctx context.Context, id string) (models.ListingStatus, error) {
	var status models.ListingStatus
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &status, `SELECT status FROM listings WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}
