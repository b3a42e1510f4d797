package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/loyalty"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

// RedemptionService turns points and tier rewards into discount codes.
type RedemptionService struct {
	deps   *Deps
	ledger *LedgerService
}

// RedemptionResult is an issued code and the account after the spend.
type RedemptionResult struct {
	Code    *model.DiscountCode   `json:"code"`
	Account *model.LoyaltyAccount `json:"account"`
}

// RedeemPoints spends points for a fixed-amount discount code. The code is
// created on the commerce platform first; local state only changes once it
// exists there.
func (s *RedemptionService) RedeemPoints(ctx context.Context, address string, points int64) (res *RedemptionResult, err error) {
	defer track("redeem_points", &err)()

	address, err = requireEmail(address)
	if err != nil {
		return nil, err
	}
	if points < s.deps.Policy.MinRedeemPoints {
		return nil, validationError("minimum %d points required", s.deps.Policy.MinRedeemPoints)
	}

	account, err := s.deps.Store.GetAccount(ctx, address)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, &InsufficientBalanceError{Available: 0, Requested: points}
	case err != nil:
		return nil, internalError("failed to load account", err)
	}
	if points > account.PointsBalance {
		return nil, &InsufficientBalanceError{Available: account.PointsBalance, Requested: points}
	}

	now := s.deps.Now()
	if _, err := s.deps.Store.ExpireDiscountCodes(ctx, address, now); err != nil {
		return nil, internalError("failed to expire discount codes", err)
	}
	active, err := s.deps.Store.GetActiveDiscountCode(ctx, address, model.SourcePoints, now)
	switch {
	case err == nil:
		return nil, conflictError("you already have an active discount code (%s), use it before redeeming again", active.Code)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internalError("failed to check active codes", err)
	}

	amount := s.deps.Policy.DiscountAmount(points)
	code, err := s.deps.Codes.Redemption(s.deps.Loyalty.CodePrefix, amount)
	if err != nil {
		return nil, internalError("failed to generate code", err)
	}
	customerID, err := s.deps.commerceCustomerID(ctx, account)
	if err != nil {
		return nil, err
	}

	expiresAt := now.AddDate(0, 0, validityDays(s.deps.Loyalty.CodeValidityDays, 90))
	discount, err := s.deps.Commerce.CreateDiscount(ctx, shopify.DiscountInput{
		Title:           fmt.Sprintf("Fidélité %s - %d pts", address, points),
		Code:            code,
		ValueType:       shopify.ValueFixedAmount,
		Value:           amount,
		CustomerID:      customerID,
		StartsAt:        now,
		EndsAt:          expiresAt,
		UsageLimit:      1,
		OncePerCustomer: true,
	})
	if err != nil {
		return nil, upstreamError("failed to create discount code", err)
	}

	dc := &model.DiscountCode{
		Email:          address,
		Code:           code,
		Source:         model.SourcePoints,
		ValueType:      model.ValueFixedAmount,
		DiscountAmount: amount,
		PriceRuleID:    discount.PriceRuleID,
		DiscountCodeID: discount.DiscountCodeID,
		Status:         model.CodeActive,
		PointsUsed:     points,
		ExpiresAt:      expiresAt,
	}
	var updated *model.LoyaltyAccount
	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		// Expiry is evaluated at check time so a lapsed code never blocks.
		if _, err := q.ExpireDiscountCodes(ctx, address, now); err != nil {
			return err
		}
		if err := q.InsertDiscountCode(ctx, dc); err != nil {
			return err
		}
		acct, _, err := s.ledger.apply(ctx, q, Entry{
			Email:        address,
			Points:       -points,
			Type:         model.TransactionRedemption,
			Description:  fmt.Sprintf("Échange de %d points contre %s €", points, amount.StringFixed(2)),
			DiscountCode: code,
			Amount:       amount,
		})
		updated = acct
		return err
	})
	if err != nil {
		s.orphaned(discount, address, err)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflictError("you already have an active discount code, use it before redeeming again")
		}
		return nil, ledgerError(err)
	}
	metrics.RecordPoints(-points)

	s.deps.notify(ctx, email.TemplateRedemption, address, email.RedemptionData{
		FirstName: updated.FirstName,
		Code:      code,
		Amount:    amount.StringFixed(2),
		Points:    points,
		ExpiresAt: formatDate(expiresAt),
		ShopURL:   s.deps.Email.ShopURL,
	})

	s.deps.Logger.Info("points redeemed",
		zap.String("email", address),
		zap.Int64("points", points),
		zap.String("code", code),
		zap.String("amount", amount.StringFixed(2)))
	return &RedemptionResult{Code: dc, Account: updated}, nil
}

// RedeemGiftCard issues the gift card of a tier the customer has reached and
// not yet claimed. No points are spent.
func (s *RedemptionService) RedeemGiftCard(ctx context.Context, address, tierName string) (res *RedemptionResult, err error) {
	defer track("redeem_gift_card", &err)()

	address, err = requireEmail(address)
	if err != nil {
		return nil, err
	}
	tier, ok := s.deps.Tiers.Lookup(strings.TrimSpace(tierName))
	if !ok {
		return nil, validationError("unknown tier %q", tierName)
	}
	if !tier.GiftCardAmount.IsPositive() {
		return nil, validationError("tier %s has no gift card", tier.Name)
	}

	account, err := s.deps.Store.GetAccount(ctx, address)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, validationError("tier %s not reached", tier.Name)
	case err != nil:
		return nil, internalError("failed to load account", err)
	}
	if current := s.deps.Tiers.Resolve(account.TotalPointsEarned); current.Rank < tier.Rank {
		return nil, validationError("tier %s not reached", tier.Name)
	}

	redeemed, err := s.deps.Store.ListGiftCardRedemptions(ctx, address)
	if err != nil {
		return nil, internalError("failed to list gift cards", err)
	}
	for _, r := range redeemed {
		if r.TierName == tier.Name {
			return nil, conflictError("gift card for tier %s already redeemed", tier.Name)
		}
	}

	code, err := s.deps.Codes.GiftCard(s.deps.Loyalty.GiftCardPrefix, tier.Name)
	if err != nil {
		return nil, internalError("failed to generate code", err)
	}
	customerID, err := s.deps.commerceCustomerID(ctx, account)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now()
	expiresAt := now.AddDate(0, 0, validityDays(s.deps.Loyalty.GiftCardValidityDays, 365))
	discount, err := s.deps.Commerce.CreateDiscount(ctx, shopify.DiscountInput{
		Title:           fmt.Sprintf("Carte cadeau %s - %s", tier.Name, address),
		Code:            code,
		ValueType:       shopify.ValueFixedAmount,
		Value:           tier.GiftCardAmount,
		CustomerID:      customerID,
		StartsAt:        now,
		EndsAt:          expiresAt,
		UsageLimit:      1,
		OncePerCustomer: true,
	})
	if err != nil {
		return nil, upstreamError("failed to create gift card", err)
	}

	dc := &model.DiscountCode{
		Email:          address,
		Code:           code,
		Source:         model.SourceGiftCard,
		ValueType:      model.ValueFixedAmount,
		DiscountAmount: tier.GiftCardAmount,
		PriceRuleID:    discount.PriceRuleID,
		DiscountCodeID: discount.DiscountCodeID,
		TierName:       tier.Name,
		Status:         model.CodeActive,
		ExpiresAt:      expiresAt,
	}
	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.InsertGiftCardRedemption(ctx, &model.GiftCardRedemption{
			Email:        address,
			TierName:     tier.Name,
			DiscountCode: code,
			Amount:       tier.GiftCardAmount,
		}); err != nil {
			return err
		}
		if err := q.InsertDiscountCode(ctx, dc); err != nil {
			return err
		}
		return q.InsertTransaction(ctx, &model.PointsTransaction{
			Email:        address,
			Points:       0,
			Type:         model.TransactionGiftCardRedeemed,
			Description:  fmt.Sprintf("Carte cadeau %s de %s €", tier.Name, tier.GiftCardAmount.StringFixed(2)),
			DiscountCode: code,
			TierName:     tier.Name,
			Amount:       tier.GiftCardAmount,
		})
	})
	if err != nil {
		s.orphaned(discount, address, err)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflictError("gift card for tier %s already redeemed", tier.Name)
		}
		return nil, internalError("failed to record gift card", err)
	}

	s.deps.notify(ctx, email.TemplateGiftCard, address, email.GiftCardData{
		FirstName: account.FirstName,
		Code:      code,
		Amount:    tier.GiftCardAmount.StringFixed(2),
		Tier:      tier.Name,
		ExpiresAt: formatDate(expiresAt),
		ShopURL:   s.deps.Email.ShopURL,
	})

	s.deps.Logger.Info("gift card redeemed",
		zap.String("email", address),
		zap.String("tier", tier.Name),
		zap.String("code", code))
	return &RedemptionResult{Code: dc, Account: account}, nil
}

// orphaned reports an external discount whose local persistence failed so an
// operator can reconcile it.
func (s *RedemptionService) orphaned(d *shopify.Discount, address string, cause error) {
	metrics.RecordOrphanedDiscount()
	s.deps.Logger.Error("orphaned external discount",
		zap.String("email", address),
		zap.String("code", d.Code),
		zap.String("price_rule_id", d.PriceRuleID),
		zap.String("discount_code_id", d.DiscountCodeID),
		zap.Error(cause))
}

// CodeListing is a customer's codes after lazy expiry.
type CodeListing struct {
	Codes       []model.DiscountCode `json:"codes"`
	ActiveCount int                  `json:"active_count"`
	TotalCount  int                  `json:"total_count"`
}

// ListCodes returns every code of email. Active codes past their expiry are
// flipped to expired first.
func (s *RedemptionService) ListCodes(ctx context.Context, address string) (*CodeListing, error) {
	address, err := requireEmail(address)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now()
	if _, err := s.deps.Store.ExpireDiscountCodes(ctx, address, now); err != nil {
		return nil, internalError("failed to expire discount codes", err)
	}
	codes, err := s.deps.Store.ListDiscountCodes(ctx, address)
	if err != nil {
		return nil, internalError("failed to list discount codes", err)
	}

	out := &CodeListing{Codes: codes, TotalCount: len(codes)}
	for i := range codes {
		if codes[i].ActiveAt(now) {
			out.ActiveCount++
		}
	}
	return out, nil
}

// GiftCardStatus lists claimed tier rewards and the ones still claimable.
type GiftCardStatus struct {
	Redeemed  []model.GiftCardRedemption `json:"redeemed"`
	Available []loyalty.Tier             `json:"available"`
}

// GiftCards returns the gift card state of email.
func (s *RedemptionService) GiftCards(ctx context.Context, address string) (*GiftCardStatus, error) {
	address, err := requireEmail(address)
	if err != nil {
		return nil, err
	}

	redeemed, err := s.deps.Store.ListGiftCardRedemptions(ctx, address)
	if err != nil {
		return nil, internalError("failed to list gift cards", err)
	}
	var earned int64
	account, err := s.deps.Store.GetAccount(ctx, address)
	switch {
	case err == nil:
		earned = account.TotalPointsEarned
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internalError("failed to load account", err)
	}

	claimed := make(map[string]bool, len(redeemed))
	for _, r := range redeemed {
		claimed[r.TierName] = true
	}
	current := s.deps.Tiers.Resolve(earned)
	out := &GiftCardStatus{Redeemed: redeemed, Available: []loyalty.Tier{}}
	for _, t := range s.deps.Tiers.Tiers() {
		if t.Rank <= current.Rank && t.GiftCardAmount.IsPositive() && !claimed[t.Name] {
			out.Available = append(out.Available, t)
		}
	}
	return out, nil
}

// commerceCustomerID resolves the platform id of an account holder.
func (d *Deps) commerceCustomerID(ctx context.Context, account *model.LoyaltyAccount) (string, error) {
	if account.CommerceCustomerID != "" {
		return account.CommerceCustomerID, nil
	}
	if c, err := d.Store.GetCustomer(ctx, account.Email); err == nil && c.CommerceID != "" {
		return c.CommerceID, nil
	}
	c, err := d.Commerce.FindCustomer(ctx, account.Email)
	if err != nil {
		return "", upstreamError("failed to look up customer", err)
	}
	if c == nil {
		return "", notFoundError("customer %s not found in shop", account.Email)
	}
	return c.ID, nil
}

func validityDays(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}
