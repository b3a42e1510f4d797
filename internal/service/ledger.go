package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/loyalty"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// errAlreadyProcessed aborts an earn transaction whose order was already
// credited.
var errAlreadyProcessed = errors.New("order already processed")

// LedgerService applies point movements to loyalty accounts.
type LedgerService struct {
	deps *Deps
}

// Entry is one signed point movement.
type Entry struct {
	Email        string
	Points       int64
	Type         model.TransactionType
	Description  string
	OrderID      string
	DiscountCode string
	TierName     string
	Amount       decimal.Decimal

	// Used when the account is created lazily.
	CommerceCustomerID string
	FirstName          string
	LastName           string
}

// EarnResult describes the outcome of an earn event.
type EarnResult struct {
	Account          *model.LoyaltyAccount    `json:"account"`
	Transaction      *model.PointsTransaction `json:"transaction,omitempty"`
	PreviousTier     loyalty.Tier             `json:"previous_tier"`
	Tier             loyalty.Tier             `json:"tier"`
	Bonuses          []model.TierBonusAward   `json:"bonuses,omitempty"`
	AlreadyProcessed bool                     `json:"already_processed"`
}

// Earn credits points and pays any tier bonus the credit unlocks, atomically.
// A purchase whose order was already credited is reported as
// AlreadyProcessed without changing anything.
func (s *LedgerService) Earn(ctx context.Context, e Entry) (res *EarnResult, err error) {
	defer track("earn", &err)()

	email, err := requireEmail(e.Email)
	if err != nil {
		return nil, err
	}
	e.Email = email
	if e.Points <= 0 {
		return nil, validationError("earned points must be positive")
	}

	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		var txErr error
		res, txErr = s.earn(ctx, q, e)
		return txErr
	})
	if errors.Is(err, errAlreadyProcessed) {
		account, getErr := s.deps.Store.GetAccount(ctx, email)
		if getErr != nil {
			return nil, internalError("failed to load account", getErr)
		}
		tier := s.deps.Tiers.Resolve(account.TotalPointsEarned)
		return &EarnResult{Account: account, PreviousTier: tier, Tier: tier, AlreadyProcessed: true}, nil
	}
	if err != nil {
		return nil, ledgerError(err)
	}

	metrics.RecordPoints(res.Transaction.Points)
	for _, b := range res.Bonuses {
		metrics.RecordPoints(b.BonusPoints)
	}
	return res, nil
}

// earn runs inside a transaction. It credits e and then pays the bonus of
// every newly reached tier not yet awarded to the customer, lowest first.
func (s *LedgerService) earn(ctx context.Context, q repository.Queries, e Entry) (*EarnResult, error) {
	account, tx, err := s.apply(ctx, q, e)
	if err != nil {
		if e.Type == model.TransactionPurchase && errors.Is(err, repository.ErrDuplicate) {
			return nil, errAlreadyProcessed
		}
		return nil, err
	}

	res := &EarnResult{
		PreviousTier: s.deps.Tiers.Resolve(account.TotalPointsEarned - e.Points),
		Transaction:  tx,
	}
	tiers := s.deps.Tiers.Tiers()
	for rank := res.PreviousTier.Rank + 1; rank < len(tiers); rank++ {
		// Bonuses count towards lifetime earnings and may unlock the next
		// rank, so the threshold is checked against the running total.
		tier := tiers[rank]
		if tier.Threshold > account.TotalPointsEarned {
			break
		}
		if tier.BonusPoints == 0 && tier.BonusAmount.IsZero() {
			continue
		}

		// The existence check must precede the write: bonuses are keyed on
		// (customer, tier) and webhooks may be redelivered.
		awarded, err := q.HasTierAward(ctx, e.Email, tier.Name)
		if err != nil {
			return nil, err
		}
		if awarded {
			continue
		}
		award := &model.TierBonusAward{
			Email:       e.Email,
			TierName:    tier.Name,
			BonusPoints: tier.BonusPoints,
			BonusAmount: tier.BonusAmount,
		}
		if err := q.InsertTierAward(ctx, award); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return nil, err
		}

		bonus := Entry{
			Email:       e.Email,
			Points:      tier.BonusPoints,
			Type:        model.TransactionTierBonus,
			Description: fmt.Sprintf("Bonus palier %s", tier.Name),
			TierName:    tier.Name,
			Amount:      tier.BonusAmount,
		}
		if bonus.Points > 0 {
			account, _, err = s.apply(ctx, q, bonus)
			if err != nil {
				return nil, err
			}
		}
		res.Bonuses = append(res.Bonuses, *award)
	}

	res.Account = account
	res.Tier = s.deps.Tiers.Resolve(account.TotalPointsEarned)
	return res, nil
}

// apply mutates the account and appends the matching transaction. The
// account is created on first use; spends fail with InsufficientBalanceError.
func (s *LedgerService) apply(ctx context.Context, q repository.Queries, e Entry) (*model.LoyaltyAccount, *model.PointsTransaction, error) {
	account, err := s.loadOrCreate(ctx, q, e)
	if err != nil {
		return nil, nil, err
	}

	if e.Points < 0 && account.PointsBalance < -e.Points {
		return nil, nil, &InsufficientBalanceError{Available: account.PointsBalance, Requested: -e.Points}
	}

	account.PointsBalance += e.Points
	if e.Points >= 0 {
		account.TotalPointsEarned += e.Points
	} else {
		account.TotalPointsSpent -= e.Points
	}
	if err := q.UpdateAccount(ctx, account); err != nil {
		return nil, nil, err
	}

	tx := &model.PointsTransaction{
		Email:        e.Email,
		Points:       e.Points,
		Type:         e.Type,
		Description:  e.Description,
		OrderID:      e.OrderID,
		DiscountCode: e.DiscountCode,
		TierName:     e.TierName,
		Amount:       e.Amount,
	}
	if err := q.InsertTransaction(ctx, tx); err != nil {
		return nil, nil, err
	}
	return account, tx, nil
}

func (s *LedgerService) loadOrCreate(ctx context.Context, q repository.Queries, e Entry) (*model.LoyaltyAccount, error) {
	account, err := q.GetAccount(ctx, e.Email)
	if err == nil {
		if account.CommerceCustomerID == "" && e.CommerceCustomerID != "" {
			account.CommerceCustomerID = e.CommerceCustomerID
		}
		if account.FirstName == "" && e.FirstName != "" {
			account.FirstName, account.LastName = e.FirstName, e.LastName
		}
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	account = &model.LoyaltyAccount{
		Email:              e.Email,
		CommerceCustomerID: e.CommerceCustomerID,
		FirstName:          e.FirstName,
		LastName:           e.LastName,
	}
	err = q.CreateAccount(ctx, account)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the creation race; the row is visible now.
		return q.GetAccount(ctx, e.Email)
	}
	if err != nil {
		return nil, err
	}
	return q.GetAccount(ctx, e.Email)
}

// ProcessOrder credits a paid order. Orders without an email or worth zero
// points are ignored.
func (s *LedgerService) ProcessOrder(ctx context.Context, order shopify.Order) (*EarnResult, error) {
	address := normalizeEmail(order.CustomerEmail())
	if address == "" {
		s.deps.Logger.Info("order without email ignored", zap.String("order", order.Reference()))
		return nil, nil
	}
	if !strings.Contains(address, "@") {
		s.deps.Logger.Warn("order with malformed email ignored",
			zap.String("order", order.Reference()),
			zap.String("email", address))
		return nil, nil
	}
	points := s.deps.Policy.PointsForAmount(order.TotalPrice)
	if points <= 0 {
		return nil, nil
	}

	e := Entry{
		Email:       address,
		Points:      points,
		Type:        model.TransactionPurchase,
		Description: fmt.Sprintf("Commande %s", orderLabel(order)),
		OrderID:     order.Reference(),
		Amount:      order.TotalPrice,
	}
	if c := order.Customer; c != nil {
		if c.ID != 0 {
			e.CommerceCustomerID = fmt.Sprint(c.ID)
		}
		e.FirstName, e.LastName = c.FirstName, c.LastName
	}

	res, err := s.Earn(ctx, e)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("email", address),
		zap.String("order", e.OrderID),
		zap.Int64("points", points),
		zap.Bool("already_processed", res.AlreadyProcessed),
	}
	if res.Tier.Rank > res.PreviousTier.Rank {
		fields = append(fields, zap.String("tier", res.Tier.Name))
	}
	s.deps.Logger.Info("order credited", fields...)
	return res, nil
}

func orderLabel(o shopify.Order) string {
	if o.Name != "" {
		return o.Name
	}
	return o.Reference()
}

// BalanceView is an account with its tier position.
type BalanceView struct {
	Account      model.LoyaltyAccount `json:"account"`
	Tier         loyalty.Tier         `json:"tier"`
	NextTier     *loyalty.Tier        `json:"next_tier,omitempty"`
	PointsToNext int64                `json:"points_to_next_tier"`
}

// Balance returns the account of email, or a zero account when the customer
// has never earned.
func (s *LedgerService) Balance(ctx context.Context, address string) (*BalanceView, error) {
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

	view := &BalanceView{Account: *account, Tier: s.deps.Tiers.Resolve(account.TotalPointsEarned)}
	if next, ok := s.deps.Tiers.Next(view.Tier); ok {
		view.NextTier = &next
		view.PointsToNext = next.Threshold - account.TotalPointsEarned
	}
	return view, nil
}

// History returns the newest transactions of email. limit defaults to 10 and
// is capped at 100.
func (s *LedgerService) History(ctx context.Context, address string, limit int) ([]model.PointsTransaction, error) {
	address, err := requireEmail(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	txs, err := s.deps.Store.ListTransactions(ctx, address, limit)
	if err != nil {
		return nil, internalError("failed to list transactions", err)
	}
	return txs, nil
}

// ledgerError classifies errors escaping a ledger transaction.
func ledgerError(err error) error {
	var ib *InsufficientBalanceError
	var se *Error
	switch {
	case errors.As(err, &ib), errors.As(err, &se):
		return err
	case errors.Is(err, repository.ErrStale):
		return conflictError("account changed concurrently, please retry")
	default:
		return internalError("ledger update failed", err)
	}
}
