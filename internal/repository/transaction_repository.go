package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/loyalty/internal/model"
)

// InsertTransaction appends a ledger entry. A purchase whose order id was
// already recorded for the customer yields ErrDuplicate.
func (q *queries) InsertTransaction(ctx context.Context, t *model.PointsTransaction) error {
	query := `
		INSERT INTO points_transactions
			(id, customer_email, points, transaction_type, description, order_id, discount_code, tier_name, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	result, err := q.db.ExecContext(ctx, query,
		t.ID, t.Email, t.Points, t.Type, t.Description, t.OrderID, t.DiscountCode, t.TierName, t.Amount, t.CreatedAt)
	if err != nil {
		return insertErr(err, "points transaction")
	}
	return requireRow(result, ErrDuplicate, "points transaction")
}

// ListTransactions returns a customer's entries, newest first. A limit <= 0
// returns the whole history.
func (q *queries) ListTransactions(ctx context.Context, email string, limit int) ([]model.PointsTransaction, error) {
	query := `
		SELECT id, customer_email, points, transaction_type, description, order_id, discount_code, tier_name, amount, created_at
		FROM points_transactions
		WHERE customer_email = $1
		ORDER BY created_at DESC, id
	`
	args := []interface{}{email}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	transactions := []model.PointsTransaction{}
	if err := q.db.SelectContext(ctx, &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list points transactions: %w", err)
	}
	return transactions, nil
}

// HasTierAward reports whether the tier bonus was already granted
func (q *queries) HasTierAward(ctx context.Context, email, tier string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tier_bonus_awards WHERE customer_email = $1 AND tier_name = $2
		)
	`

	var exists bool
	if err := q.db.GetContext(ctx, &exists, query, email, tier); err != nil {
		return false, fmt.Errorf("failed to check tier award: %w", err)
	}
	return exists, nil
}

// InsertTierAward records a tier bonus; the (email, tier) key makes a second
// award fail with ErrDuplicate.
func (q *queries) InsertTierAward(ctx context.Context, a *model.TierBonusAward) error {
	query := `
		INSERT INTO tier_bonus_awards (customer_email, tier_name, bonus_points, bonus_amount, awarded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_email, tier_name) DO NOTHING
	`

	if a.AwardedAt.IsZero() {
		a.AwardedAt = time.Now()
	}
	result, err := q.db.ExecContext(ctx, query, a.Email, a.TierName, a.BonusPoints, a.BonusAmount, a.AwardedAt)
	if err != nil {
		return insertErr(err, "tier award")
	}
	return requireRow(result, ErrDuplicate, "tier award")
}
