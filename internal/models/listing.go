package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus is the lifecycle state of a sale listing.
type ListingStatus string

const (
	ListingDraft     ListingStatus = "DRAFT"
	ListingPublished ListingStatus = "PUBLISHED"
	ListingArchived  ListingStatus = "ARCHIVED"
	ListingSold      ListingStatus = "SOLD"
)

// Listing is a seller's offer to sell copies of a card at a fixed price.
type Listing struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"userId"`
	CardID      *string         `db:"card_id" json:"cardId,omitempty"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Currency    string          `db:"currency" json:"currency"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Language    string          `db:"language" json:"language"`
	Condition   CardCondition   `db:"condition" json:"condition"`
	Status      ListingStatus   `db:"status" json:"status"`
	PublishedAt *time.Time      `db:"published_at" json:"publishedAt,omitempty"`
	SoldAt      *time.Time      `db:"sold_at" json:"soldAt,omitempty"`
	ArchivedAt  *time.Time      `db:"archived_at" json:"archivedAt,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsPublic reports whether anyone may read the listing.
func (l *Listing) IsPublic() bool {
	return l.Status == ListingPublished || l.Status == ListingSold
}

// IsOwnedBy reports whether userID is the seller.
func (l *Listing) IsOwnedBy(userID string) bool {
	return userID != "" && l.UserID == userID
}

// InventoryKey addresses the seller's collection row backing this listing.
// ok is false for listings not tied to a catalog card.
func (l *Listing) InventoryKey() (InventoryKey, bool) {
	if l.CardID == nil || *l.CardID == "" {
		return InventoryKey{}, false
	}
	return InventoryKey{
		UserID:    l.UserID,
		CardID:    *l.CardID,
		Language:  l.Language,
		Condition: l.Condition,
	}, true
}

// ListingFilter narrows listing queries.
type ListingFilter struct {
	Statuses []ListingStatus
	CardID   string
	SellerID string
	Page     Page
}

// ListingPatch carries the editable fields of a draft. Nil fields are left
// untouched.
type ListingPatch struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Currency    *string
	Quantity    *int
	Language    *string
	Condition   *CardCondition
}

// Empty reports whether the patch changes nothing.
func (p ListingPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil && p.Currency == nil &&
		p.Quantity == nil && p.Language == nil && p.Condition == nil
}
