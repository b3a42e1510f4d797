package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kkkkikiki/loyalty/internal/model"
)

var (
	// ErrNotFound is returned when a point query matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrStale is returned when a conditional update matches no row because
	// the row changed since it was read.
	ErrStale = errors.New("stale write")
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Queries is the full set of storage operations used by the services.
// Every check-then-act rule is backed by a constraint or a conditional
// write, so implementations report ErrDuplicate or ErrStale instead of
// silently breaking an invariant.
type Queries interface {
	GetCustomer(ctx context.Context, email string) (*model.Customer, error)
	CreateCustomer(ctx context.Context, c *model.Customer) error
	UpdatePassword(ctx context.Context, email, hash string) error

	GetAccount(ctx context.Context, email string) (*model.LoyaltyAccount, error)
	CreateAccount(ctx context.Context, a *model.LoyaltyAccount) error
	UpdateAccount(ctx context.Context, a *model.LoyaltyAccount) error

	InsertTransaction(ctx context.Context, t *model.PointsTransaction) error
	ListTransactions(ctx context.Context, email string, limit int) ([]model.PointsTransaction, error)

	HasTierAward(ctx context.Context, email, tier string) (bool, error)
	InsertTierAward(ctx context.Context, a *model.TierBonusAward) error

	ExpireDiscountCodes(ctx context.Context, email string, now time.Time) (int64, error)
	GetActiveDiscountCode(ctx context.Context, email string, source model.CodeSource, now time.Time) (*model.DiscountCode, error)
	InsertDiscountCode(ctx context.Context, c *model.DiscountCode) error
	ListDiscountCodes(ctx context.Context, email string) ([]model.DiscountCode, error)

	ListGiftCardRedemptions(ctx context.Context, email string) ([]model.GiftCardRedemption, error)
	InsertGiftCardRedemption(ctx context.Context, r *model.GiftCardRedemption) error

	ListMissions(ctx context.Context) ([]model.Mission, error)
	GetMission(ctx context.Context, id int64) (*model.Mission, error)
	ListUserMissions(ctx context.Context, email string) ([]model.UserMission, error)
	GetUserMission(ctx context.Context, email string, missionID int64) (*model.UserMission, error)
	CreateUserMission(ctx context.Context, um *model.UserMission) error
	UpdateUserMission(ctx context.Context, um *model.UserMission) error

	CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error
	GetResetToken(ctx context.Context, token string) (*model.PasswordResetToken, error)
	ConsumeResetToken(ctx context.Context, token string) error
}

// Store is Queries plus a unit of work. Writes made through the Queries
// passed to fn commit together or not at all.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
	queries
}

// NewPostgresStore creates a store over an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, queries: queries{db: db}}
}

// WithTx runs fn in a transaction. Account reads inside fn lock the row.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queries binds the per-table operations to an executor.
type queries struct {
	db   DBExecutor
	inTx bool
}

const uniqueViolation = "23505"

// insertErr maps unique violations to ErrDuplicate.
func insertErr(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

// getErr maps sql.ErrNoRows to ErrNotFound.
func getErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// requireRow turns a zero-row write into sentinel.
func requireRow(result sql.Result, sentinel error, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, sentinel)
	}
	return nil
}
