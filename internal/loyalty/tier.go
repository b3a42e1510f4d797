// Package loyalty holds the pure rules of the points program: tier
// resolution, point/currency conversion and discount code strings.
package loyalty

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a named level reached once lifetime earned points pass Threshold.
type Tier struct {
	Name      string `yaml:"name" json:"name"`
	Threshold int64  `yaml:"threshold" json:"threshold"`
	// BonusPoints is granted once, the first time a customer enters the tier.
	BonusPoints int64 `yaml:"bonus_points" json:"bonus_points"`
	// BonusAmount is the currency equivalent recorded with the bonus award.
	BonusAmount decimal.Decimal `yaml:"bonus_amount" json:"bonus_amount"`
	// GiftCardAmount is the fixed discount unlocked by the tier's gift card.
	GiftCardAmount decimal.Decimal `yaml:"gift_card_amount" json:"gift_card_amount"`
	// Rank is the position in the table, 0 for the lowest tier.
	Rank int `yaml:"-" json:"rank"`
}

// TierTable is an ascending list of tiers.
type TierTable struct {
	tiers []Tier
}

// DefaultTiers returns the stock program: Bronze, Argent, Or, Diamant, Maître.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Bronze", Threshold: 0},
		{Name: "Argent", Threshold: 25, BonusPoints: 10, BonusAmount: decimal.NewFromInt(1), GiftCardAmount: decimal.NewFromInt(5)},
		{Name: "Or", Threshold: 100, BonusPoints: 25, BonusAmount: decimal.RequireFromString("2.50"), GiftCardAmount: decimal.NewFromInt(10)},
		{Name: "Diamant", Threshold: 300, BonusPoints: 50, BonusAmount: decimal.NewFromInt(5), GiftCardAmount: decimal.NewFromInt(20)},
		{Name: "Maître", Threshold: 750, BonusPoints: 100, BonusAmount: decimal.NewFromInt(10), GiftCardAmount: decimal.NewFromInt(50)},
	}
}

// NewTierTable sorts the tiers by threshold and rejects empty tables,
// duplicate names and duplicate thresholds.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table is empty")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})

	names := make(map[string]struct{}, len(sorted))
	for i := range sorted {
		t := &sorted[i]
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("tier %d has no name", i)
		}
		key := strings.ToLower(t.Name)
		if _, ok := names[key]; ok {
			return nil, fmt.Errorf("duplicate tier name %q", t.Name)
		}
		names[key] = struct{}{}
		if i > 0 && sorted[i-1].Threshold == t.Threshold {
			return nil, fmt.Errorf("tiers %q and %q share threshold %d", sorted[i-1].Name, t.Name, t.Threshold)
		}
		if t.BonusPoints < 0 {
			return nil, fmt.Errorf("tier %q has a negative bonus", t.Name)
		}
		t.Rank = i
	}

	return &TierTable{tiers: sorted}, nil
}

// MustTierTable is NewTierTable for static tables.
func MustTierTable(tiers []Tier) *TierTable {
	table, err := NewTierTable(tiers)
	if err != nil {
		panic(err)
	}
	return table
}

// Resolve returns the highest tier whose threshold is <= earned. Inputs below
// the lowest threshold resolve to the lowest tier.
func (t *TierTable) Resolve(earned int64) Tier {
	current := t.tiers[0]
	for _, tier := range t.tiers {
		if tier.Threshold <= earned {
			current = tier
		}
	}
	return current
}

// Next returns the tier after current, if any.
func (t *TierTable) Next(current Tier) (Tier, bool) {
	if current.Rank+1 >= len(t.tiers) {
		return Tier{}, false
	}
	return t.tiers[current.Rank+1], true
}

// Lookup finds a tier by name, case-insensitively.
func (t *TierTable) Lookup(name string) (Tier, bool) {
	for _, tier := range t.tiers {
		if strings.EqualFold(tier.Name, name) {
			return tier, true
		}
	}
	return Tier{}, false
}

// Tiers returns a copy of the table in ascending order.
func (t *TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
