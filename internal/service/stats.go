package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/loyalty"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

const (
	defaultOrdersLimit = 10
	maxOrdersLimit     = 50
)

// StatsService derives read-only figures from orders and the ledger.
type StatsService struct {
	deps *Deps
}

// Savings splits the discounts obtained by source.
type Savings struct {
	Points    decimal.Decimal `json:"points"`
	GiftCards decimal.Decimal `json:"gift_cards"`
	TierBonus decimal.Decimal `json:"tier_bonus"`
	Total     decimal.Decimal `json:"total"`
}

// Stats is the customer dashboard.
type Stats struct {
	Email             string          `json:"email"`
	PointsBalance     int64           `json:"points_balance"`
	TotalPointsEarned int64           `json:"total_points_earned"`
	TotalPointsSpent  int64           `json:"total_points_spent"`
	Tier              loyalty.Tier    `json:"tier"`
	OrdersCount       int             `json:"orders_count"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	AverageOrder      decimal.Decimal `json:"average_order"`
	Savings           Savings         `json:"savings"`
	RedemptionsCount  int             `json:"redemptions_count"`
	GiftCardsCount    int             `json:"gift_cards_count"`
	OrdersAvailable   bool            `json:"orders_available"`
}

// Stats merges the platform's order history with the local ledger. Savings
// are summed from the structured amount on each transaction. When the
// platform is unreachable the order figures are left at zero.
func (s *StatsService) Stats(ctx context.Context, address string) (*Stats, error) {
	address, err := requireEmail(address)
	if err != nil {
		return nil, err
	}

	account, err := s.deps.Store.GetAccount(ctx, address)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		account = &model.LoyaltyAccount{Email: address}
	case err != nil:
		return nil, internalError("failed to load account", err)
	}
	txs, err := s.deps.Store.ListTransactions(ctx, address, 0)
	if err != nil {
		return nil, internalError("failed to list transactions", err)
	}

	st := &Stats{
		Email:             address,
		PointsBalance:     account.PointsBalance,
		TotalPointsEarned: account.TotalPointsEarned,
		TotalPointsSpent:  account.TotalPointsSpent,
		Tier:              s.deps.Tiers.Resolve(account.TotalPointsEarned),
		TotalSpent:        decimal.Zero,
		AverageOrder:      decimal.Zero,
		Savings:           summarizeSavings(txs),
	}
	for _, tx := range txs {
		switch tx.Type {
		case model.TransactionRedemption:
			st.RedemptionsCount++
		case model.TransactionGiftCardRedeemed:
			st.GiftCardsCount++
		}
	}

	orders, err := s.deps.Commerce.CustomerOrders(ctx, address)
	if err != nil {
		s.deps.Logger.Warn("order history unavailable", zap.String("email", address), zap.Error(err))
		return st, nil
	}
	st.OrdersAvailable = true
	st.OrdersCount = len(orders)
	for _, o := range orders {
		st.TotalSpent = st.TotalSpent.Add(o.TotalPrice)
	}
	if len(orders) > 0 {
		st.AverageOrder = st.TotalSpent.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}
	return st, nil
}

func summarizeSavings(txs []model.PointsTransaction) Savings {
	sv := Savings{Points: decimal.Zero, GiftCards: decimal.Zero, TierBonus: decimal.Zero}
	for _, tx := range txs {
		switch tx.Type {
		case model.TransactionRedemption:
			sv.Points = sv.Points.Add(tx.Amount)
		case model.TransactionGiftCardRedeemed:
			sv.GiftCards = sv.GiftCards.Add(tx.Amount)
		case model.TransactionTierBonus:
			sv.TierBonus = sv.TierBonus.Add(tx.Amount)
		}
	}
	sv.Total = sv.Points.Add(sv.GiftCards).Add(sv.TierBonus)
	return sv
}

// Orders returns up to first orders of email, newest first. first defaults
// to 10 and is capped at 50.
func (s *StatsService) Orders(ctx context.Context, address string, first int) ([]shopify.Order, error) {
	address, err := requireEmail(address)
	if err != nil {
		return nil, err
	}
	if first <= 0 {
		first = defaultOrdersLimit
	}
	if first > maxOrdersLimit {
		first = maxOrdersLimit
	}

	orders, err := s.deps.Commerce.CustomerOrders(ctx, address)
	if err != nil {
		return nil, upstreamError("failed to fetch orders", err)
	}
	if orders == nil {
		orders = []shopify.Order{}
	}
	if len(orders) > first {
		orders = orders[:first]
	}
	return orders, nil
}
