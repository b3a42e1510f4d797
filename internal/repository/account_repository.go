package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/loyalty/internal/model"
)

const accountColumns = `customer_email, commerce_customer_id, first_name, last_name,
		points_balance, total_points_earned, total_points_spent, version, created_at, updated_at`

// GetAccount retrieves a loyalty account; inside a transaction the row is locked.
func (q *queries) GetAccount(ctx context.Context, email string) (*model.LoyaltyAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM loyalty_accounts WHERE customer_email = $1`
	if q.inTx {
		query += ` FOR UPDATE`
	}

	var a model.LoyaltyAccount
	if err := q.db.GetContext(ctx, &a, query, email); err != nil {
		return nil, getErr(err, "loyalty account")
	}
	return &a, nil
}

// CreateAccount inserts an account; a concurrent creation yields ErrDuplicate.
func (q *queries) CreateAccount(ctx context.Context, a *model.LoyaltyAccount) error {
	query := `
		INSERT INTO loyalty_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		ON CONFLICT (customer_email) DO NOTHING
	`

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 0

	result, err := q.db.ExecContext(ctx, query,
		a.Email, a.CommerceCustomerID, a.FirstName, a.LastName,
		a.PointsBalance, a.TotalPointsEarned, a.TotalPointsSpent, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return insertErr(err, "loyalty account")
	}
	return requireRow(result, ErrDuplicate, "loyalty account")
}

// UpdateAccount writes balances and profile fields if the version still
// matches, then bumps the version.
func (q *queries) UpdateAccount(ctx context.Context, a *model.LoyaltyAccount) error {
	query := `
		UPDATE loyalty_accounts
		SET commerce_customer_id = $1, first_name = $2, last_name = $3,
			points_balance = $4, total_points_earned = $5, total_points_spent = $6,
			version = version + 1, updated_at = $7
		WHERE customer_email = $8 AND version = $9
	`

	now := time.Now()
	result, err := q.db.ExecContext(ctx, query,
		a.CommerceCustomerID, a.FirstName, a.LastName,
		a.PointsBalance, a.TotalPointsEarned, a.TotalPointsSpent,
		now, a.Email, a.Version)
	if err != nil {
		return fmt.Errorf("failed to update loyalty account: %w", err)
	}
	if err := requireRow(result, ErrStale, "loyalty account"); err != nil {
		return err
	}

	a.Version++
	a.UpdatedAt = now
	return nil
}
