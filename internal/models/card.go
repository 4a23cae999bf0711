package models

import "time"

// CardCondition grades the physical state of a card.
type CardCondition string

const (
	ConditionMint        CardCondition = "MINT"
	ConditionNearMint    CardCondition = "NEAR_MINT"
	ConditionExcellent   CardCondition = "EXCELLENT"
	ConditionGood        CardCondition = "GOOD"
	ConditionLightPlayed CardCondition = "LIGHT_PLAYED"
	ConditionPlayed      CardCondition = "PLAYED"
	ConditionPoor        CardCondition = "POOR"
)

// CardConditionValues is the validator `oneof` list for CardCondition.
const CardConditionValues = "MINT NEAR_MINT EXCELLENT GOOD LIGHT_PLAYED PLAYED POOR"

// CollectionItem is one inventory row: how many copies of a card, in a given
// language and condition, a user owns. Rows never persist at quantity zero.
type CollectionItem struct {
	ID        string        `db:"id" json:"id"`
	UserID    string        `db:"user_id" json:"userId"`
	CardID    string        `db:"card_id" json:"cardId"`
	Language  string        `db:"language" json:"language"`
	Condition CardCondition `db:"condition" json:"condition"`
	Quantity  int           `db:"quantity" json:"quantity"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// InventoryKey addresses a collection row.
type InventoryKey struct {
	UserID    string
	CardID    string
	Language  string
	Condition CardCondition
}
