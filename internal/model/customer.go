package model

import (
	"time"
)

// Customer is the local credential record, keyed by email and mirrored in the
// commerce platform under CommerceID.
type Customer struct {
	Email        string    `db:"email" json:"email"`
	CommerceID   string    `db:"commerce_id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PasswordResetToken is a single-use reset credential.
type PasswordResetToken struct {
	Token     string    `db:"token" json:"-"`
	Email     string    `db:"email" json:"email"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the token can no longer be used at now.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
