package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TradeOfferStatus is the lifecycle state of a trade offer.
type TradeOfferStatus string

const (
	TradePending   TradeOfferStatus = "PENDING"
	TradeAccepted  TradeOfferStatus = "ACCEPTED"
	TradeRejected  TradeOfferStatus = "REJECTED"
	TradeCancelled TradeOfferStatus = "CANCELLED"
	TradeExpired   TradeOfferStatus = "EXPIRED"
)

// TradeItem is one line of an offered or requested bundle.
type TradeItem struct {
	CardID    string        `json:"cardId" validate:"required"`
	Language  string        `json:"language" validate:"required,min=2,max=8"`
	Condition CardCondition `json:"condition" validate:"required,oneof=MINT NEAR_MINT EXCELLENT GOOD LIGHT_PLAYED PLAYED POOR"`
	Quantity  int           `json:"quantity" validate:"required,min=1,max=999"`
}

// TradeOffer proposes exchanging cards between a creator and a receiver.
type TradeOffer struct {
	ID             string           `db:"id" json:"id"`
	CreatorUserID  string           `db:"creator_user_id" json:"creatorUserId"`
	ReceiverUserID string           `db:"receiver_user_id" json:"receiverUserId"`
	ListingID      *string          `db:"listing_id" json:"listingId,omitempty"`
	Message        string           `db:"message" json:"message"`
	OfferedItems   types.JSONText   `db:"offered_items" json:"offeredItems"`
	RequestedItems types.JSONText   `db:"requested_items" json:"requestedItems"`
	Status         TradeOfferStatus `db:"status" json:"status"`
	ExpiresAt      time.Time        `db:"expires_at" json:"expiresAt"`
	RespondedAt    *time.Time       `db:"responded_at" json:"respondedAt,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// IsParty reports whether userID is the creator or the receiver.
func (o *TradeOffer) IsParty(userID string) bool {
	return userID != "" && (o.CreatorUserID == userID || o.ReceiverUserID == userID)
}

// CounterParty returns the other side of the offer from userID's view.
func (o *TradeOffer) CounterParty(userID string) string {
	if o.CreatorUserID == userID {
		return o.ReceiverUserID
	}
	return o.CreatorUserID
}

// IsLapsed reports whether a pending offer has passed its deadline but has
// not been moved to EXPIRED yet.
func (o *TradeOffer) IsLapsed(now time.Time) bool {
	return o.Status == TradePending && now.After(o.ExpiresAt)
}

// EffectiveStatus is the status a reader should observe at now.
func (o *TradeOffer) EffectiveStatus(now time.Time) TradeOfferStatus {
	return EffectiveTradeStatus(o.Status, o.ExpiresAt, now)
}

// EffectiveTradeStatus folds the expiry deadline into a stored status.
func EffectiveTradeStatus(stored TradeOfferStatus, expiresAt, now time.Time) TradeOfferStatus {
	if stored == TradePending && now.After(expiresAt) {
		return TradeExpired
	}
	return stored
}

// TradeBox selects which side of a user's offers to list.
type TradeBox string

const (
	TradeBoxSent     TradeBox = "sent"
	TradeBoxReceived TradeBox = "received"
	TradeBoxAll      TradeBox = "all"
)

// TradeOfferFilter narrows trade offer queries to one user's offers.
type TradeOfferFilter struct {
	UserID   string
	Box      TradeBox
	Statuses []TradeOfferStatus
	Page     Page
}
