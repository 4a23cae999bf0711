package dto

import "github.com/noah-isme/card-market-api/internal/models"

// AddCollectionItemRequest adds copies of a card to the caller's collection.
type AddCollectionItemRequest struct {
	CardID    string               `json:"cardId" validate:"required,max=64"`
	Language  string               `json:"language" validate:"required,min=2,max=8"`
	Condition models.CardCondition `json:"condition" validate:"required,oneof=MINT NEAR_MINT EXCELLENT GOOD LIGHT_PLAYED PLAYED POOR"`
	Quantity  int                  `json:"quantity" validate:"required,min=1,max=9999"`
}

// PageQuery is a bare pagination query.
type PageQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
