package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

const collectionColumns = `id, user_id, card_id, language, condition, quantity, created_at, updated_at`

// CollectionRepository persists users' card inventories.
type CollectionRepository struct {
	db *sqlx.DB
}

// NewCollectionRepository constructs the repository.
func NewCollectionRepository(db *sqlx.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

// Add inserts item or increments the quantity of the existing row with the
// same key, returning the resulting row.
func (r *CollectionRepository) Add(ctx context.Context, item *models.CollectionItem) (*models.CollectionItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	const query = `INSERT INTO collection_items
	(id, user_id, card_id, language, condition, quantity, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (user_id, card_id, language, condition)
	DO UPDATE SET quantity = collection_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	RETURNING ` + collectionColumns
	var out models.CollectionItem
	err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &out, query,
		item.ID, item.UserID, item.CardID, item.Language, string(item.Condition), item.Quantity, now)
	if err != nil {
		return nil, fmt.Errorf("add collection item: %w", err)
	}
	return &out, nil
}

// Decrement removes qty copies when at least qty are owned. Zero affected rows
// means the row is missing or holds too few copies.
func (r *CollectionRepository) Decrement(ctx context.Context, key models.InventoryKey, qty int, at time.Time) (int64, error) {
	const query = `UPDATE collection_items SET quantity = quantity - $1, updated_at = $2
	WHERE user_id = $3 AND card_id = $4 AND language = $5 AND condition = $6 AND quantity >= $1`
	n, err := execAffected(ctx, database.Conn(ctx, r.db), query,
		qty, at, key.UserID, key.CardID, key.Language, string(key.Condition))
	if err != nil {
		return 0, fmt.Errorf("decrement collection item: %w", err)
	}
	return n, nil
}

// DeleteEmpty drops the row for key when it reached zero copies.
func (r *CollectionRepository) DeleteEmpty(ctx context.Context, key models.InventoryKey) error {
	const query = `DELETE FROM collection_items
	WHERE user_id = $1 AND card_id = $2 AND language = $3 AND condition = $4 AND quantity = 0`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		key.UserID, key.CardID, key.Language, string(key.Condition)); err != nil {
		return fmt.Errorf("delete empty collection item: %w", err)
	}
	return nil
}

// ListByUser returns userID's inventory.
func (r *CollectionRepository) ListByUser(ctx context.Context, userID string, page models.Page) ([]models.CollectionItem, int, error) {
	var where whereBuilder
	where.add("user_id = $%d", userID)
	where.raw("quantity > 0")

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, `SELECT COUNT(*) FROM collection_items`+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count collection items: %w", err)
	}

	limit, args := where.page(page)
	query := `SELECT ` + collectionColumns + ` FROM collection_items` + where.String() + ` ORDER BY card_id, language, condition` + limit
	items := make([]models.CollectionItem, 0)
	if err := sqlx.SelectContext(ctx, conn, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list collection items: %w", err)
	}
	return items, total, nil
}
