package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/loyalty/internal/model"
)

// GetCustomer retrieves a customer by email
func (q *queries) GetCustomer(ctx context.Context, email string) (*model.Customer, error) {
	query := `
		SELECT email, commerce_id, first_name, last_name, password_hash, created_at, updated_at
		FROM customers
		WHERE email = $1
	`

	var c model.Customer
	if err := q.db.GetContext(ctx, &c, query, email); err != nil {
		return nil, getErr(err, "customer")
	}
	return &c, nil
}

// CreateCustomer inserts a customer; the email primary key rejects duplicates.
func (q *queries) CreateCustomer(ctx context.Context, c *model.Customer) error {
	query := `
		INSERT INTO customers (email, commerce_id, first_name, last_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	result, err := q.db.ExecContext(ctx, query,
		c.Email, c.CommerceID, c.FirstName, c.LastName, c.PasswordHash, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return insertErr(err, "customer")
	}
	return requireRow(result, ErrDuplicate, "customer")
}

// UpdatePassword replaces the password hash of a customer
func (q *queries) UpdatePassword(ctx context.Context, email, hash string) error {
	query := `
		UPDATE customers
		SET password_hash = $1, updated_at = $2
		WHERE email = $3
	`

	result, err := q.db.ExecContext(ctx, query, hash, time.Now(), email)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(result, ErrNotFound, "customer")
}

// CreateResetToken stores a new reset token
func (q *queries) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (token, email, expires_at, used, created_at)
		VALUES ($1, $2, $3, false, $4)
	`

	t.CreatedAt = time.Now()
	t.Used = false
	if _, err := q.db.ExecContext(ctx, query, t.Token, t.Email, t.ExpiresAt, t.CreatedAt); err != nil {
		return insertErr(err, "reset token")
	}
	return nil
}

// GetResetToken retrieves a reset token, used or not
func (q *queries) GetResetToken(ctx context.Context, token string) (*model.PasswordResetToken, error) {
	query := `
		SELECT token, email, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`

	var t model.PasswordResetToken
	if err := q.db.GetContext(ctx, &t, query, token); err != nil {
		return nil, getErr(err, "reset token")
	}
	return &t, nil
}

// ConsumeResetToken marks a token used; a token that is already used is stale
func (q *queries) ConsumeResetToken(ctx context.Context, token string) error {
	query := `
		UPDATE password_reset_tokens
		SET used = true
		WHERE token = $1 AND used = false
	`

	result, err := q.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	return requireRow(result, ErrStale, "reset token")
}
