package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/card-market-api/internal/models"
)

// CreateListingRequest creates a draft listing.
type CreateListingRequest struct {
	CardID      *string              `json:"cardId" validate:"omitempty,min=1,max=64"`
	Title       string               `json:"title" validate:"required,min=3,max=120"`
	Description string               `json:"description" validate:"max=2000"`
	Price       decimal.Decimal      `json:"price" validate:"price"`
	Currency    string               `json:"currency" validate:"required,len=3,uppercase"`
	Quantity    int                  `json:"quantity" validate:"required,min=1,max=999"`
	Language    string               `json:"language" validate:"required,min=2,max=8"`
	Condition   models.CardCondition `json:"condition" validate:"required,oneof=MINT NEAR_MINT EXCELLENT GOOD LIGHT_PLAYED PLAYED POOR"`
}

// UpdateListingRequest edits a draft. Omitted fields keep their value.
type UpdateListingRequest struct {
	Title       *string               `json:"title" validate:"omitempty,min=3,max=120"`
	Description *string               `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal      `json:"price" validate:"omitempty,price"`
	Currency    *string               `json:"currency" validate:"omitempty,len=3,uppercase"`
	Quantity    *int                  `json:"quantity" validate:"omitempty,min=1,max=999"`
	Language    *string               `json:"language" validate:"omitempty,min=2,max=8"`
	Condition   *models.CardCondition `json:"condition" validate:"omitempty,oneof=MINT NEAR_MINT EXCELLENT GOOD LIGHT_PLAYED PLAYED POOR"`
}

// Patch converts the request into a repository patch.
func (r UpdateListingRequest) Patch() models.ListingPatch {
	return models.ListingPatch{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Currency:    r.Currency,
		Quantity:    r.Quantity,
		Language:    r.Language,
		Condition:   r.Condition,
	}
}

// ListingQuery mirrors the public listing filters.
type ListingQuery struct {
	CardID   string `form:"cardId"`
	SellerID string `form:"sellerId"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
