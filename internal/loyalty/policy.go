package loyalty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the point/currency ratios of the program.
type Policy struct {
	// EarnPointsPerUnit is the number of points earned per currency unit spent.
	EarnPointsPerUnit int64
	// RedeemPointsPerUnit is the number of points worth one currency unit of discount.
	RedeemPointsPerUnit int64
	// MinRedeemPoints is the smallest redemption accepted.
	MinRedeemPoints int64
}

// DefaultPolicy is 10 points per euro both ways with a 10 point minimum.
func DefaultPolicy() Policy {
	return Policy{EarnPointsPerUnit: 10, RedeemPointsPerUnit: 10, MinRedeemPoints: 10}
}

// PointsForAmount converts an order total into earned points, rounding down.
// Negative totals earn nothing.
func (p Policy) PointsForAmount(amount decimal.Decimal) int64 {
	if amount.Sign() <= 0 {
		return 0
	}
	return amount.Mul(decimal.NewFromInt(p.EarnPointsPerUnit)).Floor().IntPart()
}

// DiscountAmount converts redeemed points into a currency amount truncated to
// cents: floor(points / ratio * 100) / 100.
func (p Policy) DiscountAmount(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).
		Div(decimal.NewFromInt(p.RedeemPointsPerUnit)).
		Mul(decimal.NewFromInt(100)).
		Floor().
		Div(decimal.NewFromInt(100))
}

// ValidateRedemption checks the minimum and the available balance.
func (p Policy) ValidateRedemption(points, balance int64) error {
	if points < p.MinRedeemPoints {
		return fmt.Errorf("minimum %d points required", p.MinRedeemPoints)
	}
	if points > balance {
		return fmt.Errorf("requested %d points but only %d available", points, balance)
	}
	return nil
}
