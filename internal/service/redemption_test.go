package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/model"
)

func TestRedeemPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 50, 0)

	res, err := env.svc.Redemption.RedeemPoints(ctx, address, 35)
	require.NoError(t, err)

	assert.True(t, res.Code.DiscountAmount.Equal(decimal.RequireFromString("3.50")))
	assert.True(t, strings.HasPrefix(res.Code.Code, "ALOHA3-"), res.Code.Code)
	assert.Equal(t, model.CodeActive, res.Code.Status)
	assert.Equal(t, int64(35), res.Code.PointsUsed)
	assert.Equal(t, env.clock.Now().AddDate(0, 0, 90), res.Code.ExpiresAt)

	a := env.account(t, address)
	assert.Equal(t, int64(15), a.PointsBalance)
	assert.Equal(t, int64(35), a.TotalPointsSpent)
	assert.Equal(t, int64(50), a.TotalPointsEarned)

	redemptions := env.transactions(t, address, model.TransactionRedemption)
	require.Len(t, redemptions, 1)
	assert.Equal(t, int64(-35), redemptions[0].Points)
	assert.Equal(t, res.Code.Code, redemptions[0].DiscountCode)

	require.Len(t, env.commerce.discounts, 1)
	d := env.commerce.discounts[0]
	assert.True(t, d.Value.Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, a.CommerceCustomerID, d.CustomerID)
	assert.Equal(t, 1, d.UsageLimit)

	msg := env.mailer.last(t)
	assert.Equal(t, email.TemplateRedemption, msg.Template)
	assert.Contains(t, msg.HTML, res.Code.Code)
}

func TestRedeemPointsInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 50, 0)

	_, err := env.svc.Redemption.RedeemPoints(ctx, address, 51)
	var ib *InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, int64(50), ib.Available)
	assert.Equal(t, int64(51), ib.Requested)

	assert.Equal(t, int64(50), env.account(t, address).PointsBalance)
	assert.Zero(t, env.commerce.discountCount())
	assert.Empty(t, env.transactions(t, address, model.TransactionRedemption))
}

func TestRedeemPointsWithoutAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Redemption.RedeemPoints(context.Background(), "ghost@example.com", 10)
	var ib *InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, int64(0), ib.Available)
}

func TestRedeemPointsBelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "ana@example.com", 50, 0)

	_, err := env.svc.Redemption.RedeemPoints(context.Background(), "ana@example.com", 9)
	assertKind(t, err, KindValidation)
}

func TestRedeemPointsOneActiveCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 100, 0)

	_, err := env.svc.Redemption.RedeemPoints(ctx, address, 20)
	require.NoError(t, err)

	_, err = env.svc.Redemption.RedeemPoints(ctx, address, 20)
	assertKind(t, err, KindConflict)
	assert.Contains(t, err.Error(), "already have an active discount code")
	assert.Equal(t, int64(80), env.account(t, address).PointsBalance)

	// A lapsed code stops blocking even if nobody listed the codes.
	env.clock.Advance(91 * 24 * time.Hour)
	_, err = env.svc.Redemption.RedeemPoints(ctx, address, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), env.account(t, address).PointsBalance)
}

func TestRedeemPointsUpstreamFailureLeavesLedgerUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 50, 0)
	env.commerce.createDiscountErr = errors.New("502 bad gateway")

	_, err := env.svc.Redemption.RedeemPoints(ctx, address, 30)
	assertKind(t, err, KindUpstream)

	a := env.account(t, address)
	assert.Equal(t, int64(50), a.PointsBalance)
	assert.Zero(t, a.TotalPointsSpent)
	codes, err := env.store.ListDiscountCodes(ctx, address)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestRedeemPointsLocalFailureAfterExternalCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 50, 0)

	broken := New(Deps{
		Store:    failingTxStore{env.store},
		Commerce: env.commerce,
		Mailer:   env.mailer,
		Now:      env.clock.Now,
	})
	_, err := broken.Redemption.RedeemPoints(ctx, address, 30)
	assertKind(t, err, KindInternal)

	assert.Equal(t, 1, env.commerce.discountCount())
	assert.Equal(t, int64(50), env.account(t, address).PointsBalance)
}

func TestRedeemPointsEmailFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "ana@example.com", 50, 0)
	env.mailer.err = errors.New("smtp down")

	res, err := env.svc.Redemption.RedeemPoints(context.Background(), "ana@example.com", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Account.PointsBalance)
}

func TestListCodesLazyExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 50, 0)

	_, err := env.svc.Redemption.RedeemPoints(ctx, address, 10)
	require.NoError(t, err)

	listing, err := env.svc.Redemption.ListCodes(ctx, address)
	require.NoError(t, err)
	require.Len(t, listing.Codes, 1)
	assert.Equal(t, model.CodeActive, listing.Codes[0].Status)
	assert.Equal(t, 1, listing.ActiveCount)

	env.clock.Advance(90 * 24 * time.Hour)
	listing, err = env.svc.Redemption.ListCodes(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, model.CodeExpired, listing.Codes[0].Status)
	assert.Equal(t, 0, listing.ActiveCount)
	assert.Equal(t, 1, listing.TotalCount)
}

func TestRedeemGiftCard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const address = "ana@example.com"
	env.seedAccount(t, address, 30, 0)

	res, err := env.svc.Redemption.RedeemGiftCard(ctx, address, "argent")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Code.Code, "GIFTARG"), res.Code.Code)
	assert.True(t, res.Code.DiscountAmount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, model.SourceGiftCard, res.Code.Source)
	assert.Equal(t, "Argent", res.Code.TierName)

	gifts := env.transactions(t, address, model.TransactionGiftCardRedeemed)
	require.Len(t, gifts, 1)
	assert.Zero(t, gifts[0].Points)
	assert.True(t, gifts[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(30), env.account(t, address).PointsBalance)
	assert.Equal(t, email.TemplateGiftCard, env.mailer.last(t).Template)

	_, err = env.svc.Redemption.RedeemGiftCard(ctx, address, "Argent")
	assertKind(t, err, KindConflict)

	_, err = env.svc.Redemption.RedeemGiftCard(ctx, address, "Or")
	assertKind(t, err, KindValidation)

	_, err = env.svc.Redemption.RedeemGiftCard(ctx, address, "Platine")
	assertKind(t, err, KindValidation)

	_, err = env.svc.Redemption.RedeemGiftCard(ctx, address, "Bronze")
	assertKind(t, err, KindValidation)

	status, err := env.svc.Redemption.GiftCards(ctx, address)
	require.NoError(t, err)
	require.Len(t, status.Redeemed, 1)
	assert.Equal(t, "Argent", status.Redeemed[0].TierName)
	assert.Empty(t, status.Available)
}

func TestGiftCardsAvailable(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "ana@example.com", 320, 0)

	status, err := env.svc.Redemption.GiftCards(context.Background(), "ana@example.com")
	require.NoError(t, err)
	names := make([]string, 0, len(status.Available))
	for _, tier := range status.Available {
		names = append(names, tier.Name)
	}
	assert.Equal(t, []string{"Argent", "Or", "Diamant"}, names)
}
