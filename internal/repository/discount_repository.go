package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const discountColumns = `id, customer_email, code, source, value_type, discount_amount, price_rule_id,
		discount_code_id, tier_name, status, points_used, expires_at, created_at`

// ExpireDiscountCodes flips a customer's active codes whose expiry has passed
// to 'expired' and returns how many changed.
func (q *queries) ExpireDiscountCodes(ctx context.Context, email string, now time.Time) (int64, error) {
	query := `
		UPDATE discount_codes
		SET status = 'expired'
		WHERE customer_email = $1 AND status = 'active' AND expires_at <= $2
	`

	result, err := q.db.ExecContext(ctx, query, email, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire discount codes: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// GetActiveDiscountCode returns the customer's active, unexpired code of the given source
func (q *queries) GetActiveDiscountCode(ctx context.Context, email string, source model.CodeSource, now time.Time) (*model.DiscountCode, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discount_codes
		WHERE customer_email = $1 AND source = $2 AND status = 'active' AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var c model.DiscountCode
	if err := q.db.GetContext(ctx, &c, query, email, source, now); err != nil {
		return nil, getErr(err, "discount code")
	}
	return &c, nil
}

// InsertDiscountCode stores an issued code. The partial unique index on active
// points-funded codes turns a second active code into ErrDuplicate.
func (q *queries) InsertDiscountCode(ctx context.Context, c *model.DiscountCode) error {
	query := `
		INSERT INTO discount_codes
			(customer_email, code, source, value_type, discount_amount, price_rule_id,
			 discount_code_id, tier_name, status, points_used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Status == "" {
		c.Status = model.CodeActive
	}

	var ids []int64
	err := q.db.SelectContext(ctx, &ids, query,
		c.Email, c.Code, c.Source, c.ValueType, c.DiscountAmount, c.PriceRuleID,
		c.DiscountCodeID, c.TierName, c.Status, c.PointsUsed, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return insertErr(err, "discount code")
	}
	if len(ids) == 0 {
		return fmt.Errorf("discount code: %w", ErrDuplicate)
	}

	c.ID = ids[0]
	return nil
}

// ListDiscountCodes returns a customer's codes, newest first
func (q *queries) ListDiscountCodes(ctx context.Context, email string) ([]model.DiscountCode, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discount_codes
		WHERE customer_email = $1
		ORDER BY created_at DESC, id DESC
	`

	codes := []model.DiscountCode{}
	if err := q.db.SelectContext(ctx, &codes, query, email); err != nil {
		return nil, fmt.Errorf("failed to list discount codes: %w", err)
	}
	return codes, nil
}

// ListGiftCardRedemptions returns the tiers whose gift card the customer claimed
func (q *queries) ListGiftCardRedemptions(ctx context.Context, email string) ([]model.GiftCardRedemption, error) {
	query := `
		SELECT customer_email, tier_name, discount_code, amount, redeemed_at
		FROM gift_card_redemptions
		WHERE customer_email = $1
		ORDER BY redeemed_at ASC
	`

	redemptions := []model.GiftCardRedemption{}
	if err := q.db.SelectContext(ctx, &redemptions, query, email); err != nil {
		return nil, fmt.Errorf("failed to list gift card redemptions: %w", err)
	}
	return redemptions, nil
}

// InsertGiftCardRedemption records a claim; a second claim for the same tier
// yields ErrDuplicate.
func (q *queries) InsertGiftCardRedemption(ctx context.Context, r *model.GiftCardRedemption) error {
	query := `
		INSERT INTO gift_card_redemptions (customer_email, tier_name, discount_code, amount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_email, tier_name) DO NOTHING
	`

	if r.RedeemedAt.IsZero() {
		r.RedeemedAt = time.Now()
	}
	result, err := q.db.ExecContext(ctx, query, r.Email, r.TierName, r.DiscountCode, r.Amount, r.RedeemedAt)
	if err != nil {
		return insertErr(err, "gift card redemption")
	}
	return requireRow(result, ErrDuplicate, "gift card redemption")
}
