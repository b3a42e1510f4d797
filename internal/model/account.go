package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoyaltyAccount is the per-customer points balance. PointsBalance always
// equals TotalPointsEarned - TotalPointsSpent.
type LoyaltyAccount struct {
	Email              string    `db:"customer_email" json:"customer_email"`
	CommerceCustomerID string    `db:"commerce_customer_id" json:"customer_id,omitempty"`
	FirstName          string    `db:"first_name" json:"first_name,omitempty"`
	LastName           string    `db:"last_name" json:"last_name,omitempty"`
	PointsBalance      int64     `db:"points_balance" json:"points_balance"`
	TotalPointsEarned  int64     `db:"total_points_earned" json:"total_points_earned"`
	TotalPointsSpent   int64     `db:"total_points_spent" json:"total_points_spent"`
	Version            int64     `db:"version" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Consistent reports whether the balance matches the lifetime counters.
func (a *LoyaltyAccount) Consistent() bool {
	return a.PointsBalance >= 0 && a.PointsBalance == a.TotalPointsEarned-a.TotalPointsSpent
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionPurchase         TransactionType = "purchase"
	TransactionRedemption       TransactionType = "redemption"
	TransactionMission          TransactionType = "mission"
	TransactionTierBonus        TransactionType = "tier_bonus"
	TransactionGiftCardRedeemed TransactionType = "gift_card_redeemed"
)

// PointsTransaction is an immutable ledger entry. Points is signed: positive
// for earn, negative for redemption. Amount carries the currency value of the
// event (order total, discount value, bonus or gift card amount).
type PointsTransaction struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Email        string          `db:"customer_email" json:"customer_email"`
	Points       int64           `db:"points" json:"points"`
	Type         TransactionType `db:"transaction_type" json:"transaction_type"`
	Description  string          `db:"description" json:"description"`
	OrderID      string          `db:"order_id" json:"order_id,omitempty"`
	DiscountCode string          `db:"discount_code" json:"discount_code,omitempty"`
	TierName     string          `db:"tier_name" json:"tier_name,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// TierBonusAward records the one-time bonus for entering a tier.
type TierBonusAward struct {
	Email       string          `db:"customer_email" json:"customer_email"`
	TierName    string          `db:"tier_name" json:"tier_name"`
	BonusPoints int64           `db:"bonus_points" json:"bonus_points"`
	BonusAmount decimal.Decimal `db:"bonus_amount" json:"bonus_amount"`
	AwardedAt   time.Time       `db:"awarded_at" json:"awarded_at"`
}
