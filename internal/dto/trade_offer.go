package dto

import "github.com/noah-isme/card-market-api/internal/models"

// CreateTradeOfferRequest proposes a trade to another user.
type CreateTradeOfferRequest struct {
	ReceiverUserID string             `json:"receiverUserId" validate:"required,max=64"`
	ListingID      *string            `json:"listingId" validate:"omitempty,min=1,max=64"`
	Message        string             `json:"message" validate:"max=1000"`
	OfferedItems   []models.TradeItem `json:"offeredItems" validate:"max=50,dive"`
	RequestedItems []models.TradeItem `json:"requestedItems" validate:"max=50,dive"`
	ExpiresInHours *int               `json:"expiresInHours" validate:"omitempty,min=1"`
}

// TradeOfferQuery filters the caller's trade offers.
type TradeOfferQuery struct {
	Box      string `form:"box"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
