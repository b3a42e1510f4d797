package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CodeStatus is the lifecycle state of a discount code.
type CodeStatus string

const (
	CodeActive  CodeStatus = "active"
	CodeExpired CodeStatus = "expired"
	CodeUsed    CodeStatus = "used"
)

// CodeSource tells what funded a discount code.
type CodeSource string

const (
	SourcePoints   CodeSource = "points"
	SourceGiftCard CodeSource = "gift_card"
	SourceWelcome  CodeSource = "welcome"
)

// ValueType mirrors the commerce platform's discount value types.
type ValueType string

const (
	ValueFixedAmount ValueType = "fixed_amount"
	ValuePercentage  ValueType = "percentage"
)

// DiscountCode is a code issued to one customer. At most one points-funded
// code per customer is active at a time.
type DiscountCode struct {
	ID             int64           `db:"id" json:"id"`
	Email          string          `db:"customer_email" json:"customer_email"`
	Code           string          `db:"code" json:"code"`
	Source         CodeSource      `db:"source" json:"source"`
	ValueType      ValueType       `db:"value_type" json:"value_type"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	PriceRuleID    string          `db:"price_rule_id" json:"price_rule_id"`
	DiscountCodeID string          `db:"discount_code_id" json:"discount_code_id"`
	TierName       string          `db:"tier_name" json:"tier_name,omitempty"`
	Status         CodeStatus      `db:"status" json:"status"`
	PointsUsed     int64           `db:"points_used" json:"points_used"`
	ExpiresAt      time.Time       `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ActiveAt reports whether the code is active and not yet expired at now.
func (c *DiscountCode) ActiveAt(now time.Time) bool {
	return c.Status == CodeActive && now.Before(c.ExpiresAt)
}

// GiftCardRedemption prevents a tier's gift card from being claimed twice.
type GiftCardRedemption struct {
	Email        string          `db:"customer_email" json:"customer_email"`
	TierName     string          `db:"tier_name" json:"tier_name"`
	DiscountCode string          `db:"discount_code" json:"discount_code"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	RedeemedAt   time.Time       `db:"redeemed_at" json:"redeemed_at"`
}
