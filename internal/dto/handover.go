package dto

// CreateHandoverRequest asks for verification of a sale or a trade. Exactly
// one of ListingID and TradeOfferID must be set.
type CreateHandoverRequest struct {
	ListingID    *string `json:"listingId" validate:"omitempty,min=1,max=64"`
	TradeOfferID *string `json:"tradeOfferId" validate:"omitempty,min=1,max=64"`
	Notes        string  `json:"notes" validate:"max=2000"`
}

// HasListing reports whether a listing id was supplied.
func (r CreateHandoverRequest) HasListing() bool {
	return r.ListingID != nil && *r.ListingID != ""
}

// HasTradeOffer reports whether a trade offer id was supplied.
func (r CreateHandoverRequest) HasTradeOffer() bool {
	return r.TradeOfferID != nil && *r.TradeOfferID != ""
}

// RejectHandoverRequest carries the admin's rejection reason.
type RejectHandoverRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// StatusQuery is the admin list filter shared by handovers and reports.
type StatusQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
