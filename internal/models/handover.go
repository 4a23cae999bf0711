package models

import "time"

// HandoverStatus is the lifecycle state of a handover verification request.
type HandoverStatus string

const (
	HandoverPending  HandoverStatus = "PENDING_VERIFICATION"
	HandoverVerified HandoverStatus = "VERIFIED"
	HandoverRejected HandoverStatus = "REJECTED"
)

// Handover asks an administrator to verify that a sale or trade changed hands.
// Exactly one of ListingID and TradeOfferID is set.
type Handover struct {
	ID              string         `db:"id" json:"id"`
	RequesterUserID string         `db:"requester_user_id" json:"requesterUserId"`
	ListingID       *string        `db:"listing_id" json:"listingId,omitempty"`
	TradeOfferID    *string        `db:"trade_offer_id" json:"tradeOfferId,omitempty"`
	Status          HandoverStatus `db:"status" json:"status"`
	Notes           string         `db:"notes" json:"notes"`
	VerifiedBy      *string        `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time     `db:"verified_at" json:"verifiedAt,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// ForListing reports whether the handover belongs to a listing sale.
func (h *Handover) ForListing() bool {
	return h.ListingID != nil
}

// ParentID returns the listing or trade offer id the handover belongs to.
func (h *Handover) ParentID() string {
	if h.ListingID != nil {
		return *h.ListingID
	}
	if h.TradeOfferID != nil {
		return *h.TradeOfferID
	}
	return ""
}

// HandoverFilter narrows handover queries.
type HandoverFilter struct {
	Status HandoverStatus
	Page   Page
}
