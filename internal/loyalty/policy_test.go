package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDiscountAmount(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		points int64
		want   string
	}{
		{10, "1.00"},
		{35, "3.50"},
		{99, "9.90"},
		{123, "12.30"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.DiscountAmount(tt.points).StringFixed(2), "points=%d", tt.points)
	}

	odd := Policy{RedeemPointsPerUnit: 3, MinRedeemPoints: 1}
	// 10/3 = 3.333... truncated, not rounded
	assert.True(t, odd.DiscountAmount(10).Equal(decimal.RequireFromString("3.33")))
	assert.True(t, odd.DiscountAmount(2).Equal(decimal.RequireFromString("0.66")))
}

func TestPointsForAmount(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, int64(125), p.PointsForAmount(decimal.RequireFromString("12.59")))
	assert.Equal(t, int64(0), p.PointsForAmount(decimal.RequireFromString("0.09")))
	assert.Equal(t, int64(0), p.PointsForAmount(decimal.RequireFromString("-4")))
}

func TestValidateRedemption(t *testing.T) {
	p := DefaultPolicy()

	assert.NoError(t, p.ValidateRedemption(10, 10))
	assert.Error(t, p.ValidateRedemption(9, 100))
	assert.Error(t, p.ValidateRedemption(50, 49))
}
