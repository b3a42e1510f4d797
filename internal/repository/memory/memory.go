// Package memory is an in-process implementation of repository.Store. It
// enforces the same keys, partial unique indexes and conditional writes as the
// PostgreSQL schema, and is used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
)

type pairKey struct {
	email string
	name  string
}

type missionKey struct {
	email     string
	missionID int64
}

type state struct {
	customers    map[string]model.Customer
	accounts     map[string]model.LoyaltyAccount
	transactions []model.PointsTransaction
	awards       map[pairKey]model.TierBonusAward
	codes        []model.DiscountCode
	giftCards    map[pairKey]model.GiftCardRedemption
	missions     []model.Mission
	userMissions map[missionKey]model.UserMission
	tokens       map[string]model.PasswordResetToken
	nextCodeID   int64
}

func newState() *state {
	return &state{
		customers:    make(map[string]model.Customer),
		accounts:     make(map[string]model.LoyaltyAccount),
		awards:       make(map[pairKey]model.TierBonusAward),
		giftCards:    make(map[pairKey]model.GiftCardRedemption),
		userMissions: make(map[missionKey]model.UserMission),
		tokens:       make(map[string]model.PasswordResetToken),
		nextCodeID:   1,
	}
}

// clone copies the state so a transaction can be discarded on error.
func (s *state) clone() *state {
	c := &state{
		customers:    make(map[string]model.Customer, len(s.customers)),
		accounts:     make(map[string]model.LoyaltyAccount, len(s.accounts)),
		transactions: append([]model.PointsTransaction(nil), s.transactions...),
		awards:       make(map[pairKey]model.TierBonusAward, len(s.awards)),
		codes:        append([]model.DiscountCode(nil), s.codes...),
		giftCards:    make(map[pairKey]model.GiftCardRedemption, len(s.giftCards)),
		missions:     append([]model.Mission(nil), s.missions...),
		userMissions: make(map[missionKey]model.UserMission, len(s.userMissions)),
		tokens:       make(map[string]model.PasswordResetToken, len(s.tokens)),
		nextCodeID:   s.nextCodeID,
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.awards {
		c.awards[k] = v
	}
	for k, v := range s.giftCards {
		c.giftCards[k] = v
	}
	for k, v := range s.userMissions {
		if v.CompletedAt != nil {
			t := *v.CompletedAt
			v.CompletedAt = &t
		}
		c.userMissions[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// Store is a mutex-guarded repository.Store.
type Store struct {
	view
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMissions replaces the seeded missions.
func WithMissions(missions ...model.Mission) Option {
	return func(s *Store) { s.st.missions = append([]model.Mission(nil), missions...) }
}

// New creates an empty store seeded with the default missions.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	s.view = view{store: s}
	s.st.missions = DefaultMissions()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMissions mirrors the rows seeded by the SQL schema.
func DefaultMissions() []model.Mission {
	return []model.Mission{
		{ID: 1, Slug: "newsletter", Name: "Abonnement newsletter", Description: "Inscris-toi à la newsletter", Points: 5, TargetCount: 1, Active: true},
		{ID: 2, Slug: "first-order", Name: "Première commande", Description: "Passe ta première commande", Points: 20, TargetCount: 1, Active: true},
		{ID: 3, Slug: "review", Name: "Avis produit", Description: "Laisse un avis sur un produit", Points: 10, TargetCount: 1, Repeatable: true, Active: true},
		{ID: 4, Slug: "three-orders", Name: "Client fidèle", Description: "Passe trois commandes", Points: 50, TargetCount: 3, Active: true},
	}
}

// WithTx runs fn against a copy of the state and publishes the copy only when
// fn succeeds. fn must use the Queries it receives, not the Store.
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&view{store: s, tx: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// view implements repository.Queries either on the live state (locking per
// call) or on a transaction's working copy.
type view struct {
	store *Store
	tx    *state
}

func (v *view) begin() (*state, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.st, v.store.mu.Unlock
}

func (v *view) GetCustomer(ctx context.Context, email string) (*model.Customer, error) {
	st, done := v.begin()
	defer done()

	c, ok := st.customers[email]
	if !ok {
		return nil, fmt.Errorf("customer: %w", repository.ErrNotFound)
	}
	return &c, nil
}

func (v *view) CreateCustomer(ctx context.Context, c *model.Customer) error {
	st, done := v.begin()
	defer done()

	if _, ok := st.customers[c.Email]; ok {
		return fmt.Errorf("customer: %w", repository.ErrDuplicate)
	}
	now := v.store.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	st.customers[c.Email] = *c
	return nil
}

func (v *view) UpdatePassword(ctx context.Context, email, hash string) error {
	st, done := v.begin()
	defer done()

	c, ok := st.customers[email]
	if !ok {
		return fmt.Errorf("customer: %w", repository.ErrNotFound)
	}
	c.PasswordHash = hash
	c.UpdatedAt = v.store.now()
	st.customers[email] = c
	return nil
}

func (v *view) GetAccount(ctx context.Context, email string) (*model.LoyaltyAccount, error) {
	st, done := v.begin()
	defer done()

	a, ok := st.accounts[email]
	if !ok {
		return nil, fmt.Errorf("loyalty account: %w", repository.ErrNotFound)
	}
	return &a, nil
}

func (v *view) CreateAccount(ctx context.Context, a *model.LoyaltyAccount) error {
	st, done := v.begin()
	defer done()

	if _, ok := st.accounts[a.Email]; ok {
		return fmt.Errorf("loyalty account: %w", repository.ErrDuplicate)
	}
	if err := checkLedger(a); err != nil {
		return err
	}
	now := v.store.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 0
	st.accounts[a.Email] = *a
	return nil
}

func (v *view) UpdateAccount(ctx context.Context, a *model.LoyaltyAccount) error {
	st, done := v.begin()
	defer done()

	current, ok := st.accounts[a.Email]
	if !ok || current.Version != a.Version {
		return fmt.Errorf("loyalty account: %w", repository.ErrStale)
	}
	if err := checkLedger(a); err != nil {
		return err
	}
	a.Version++
	a.UpdatedAt = v.store.now()
	a.CreatedAt = current.CreatedAt
	st.accounts[a.Email] = *a
	return nil
}

// checkLedger mirrors the CHECK constraints on loyalty_accounts.
func checkLedger(a *model.LoyaltyAccount) error {
	if !a.Consistent() || a.TotalPointsEarned < 0 || a.TotalPointsSpent < 0 {
		return fmt.Errorf("loyalty account %s violates ledger constraint", a.Email)
	}
	return nil
}

func (v *view) InsertTransaction(ctx context.Context, t *model.PointsTransaction) error {
	st, done := v.begin()
	defer done()

	if t.Type == model.TransactionPurchase && t.OrderID != "" {
		for _, existing := range st.transactions {
			if existing.Type == model.TransactionPurchase && existing.Email == t.Email && existing.OrderID == t.OrderID {
				return fmt.Errorf("points transaction: %w", repository.ErrDuplicate)
			}
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = v.store.now()
	}
	st.transactions = append(st.transactions, *t)
	return nil
}

func (v *view) ListTransactions(ctx context.Context, email string, limit int) ([]model.PointsTransaction, error) {
	st, done := v.begin()
	defer done()

	out := []model.PointsTransaction{}
	// newest first; later inserts win ties
	for i := len(st.transactions) - 1; i >= 0; i-- {
		if st.transactions[i].Email == email {
			out = append(out, st.transactions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) HasTierAward(ctx context.Context, email, tier string) (bool, error) {
	st, done := v.begin()
	defer done()

	_, ok := st.awards[pairKey{email, tier}]
	return ok, nil
}

func (v *view) InsertTierAward(ctx context.Context, a *model.TierBonusAward) error {
	st, done := v.begin()
	defer done()

	key := pairKey{a.Email, a.TierName}
	if _, ok := st.awards[key]; ok {
		return fmt.Errorf("tier award: %w", repository.ErrDuplicate)
	}
	if a.AwardedAt.IsZero() {
		a.AwardedAt = v.store.now()
	}
	st.awards[key] = *a
	return nil
}

func (v *view) ExpireDiscountCodes(ctx context.Context, email string, now time.Time) (int64, error) {
	st, done := v.begin()
	defer done()

	var n int64
	for i := range st.codes {
		c := &st.codes[i]
		if c.Email == email && c.Status == model.CodeActive && !c.ExpiresAt.After(now) {
			c.Status = model.CodeExpired
			n++
		}
	}
	return n, nil
}

func (v *view) GetActiveDiscountCode(ctx context.Context, email string, source model.CodeSource, now time.Time) (*model.DiscountCode, error) {
	st, done := v.begin()
	defer done()

	for i := len(st.codes) - 1; i >= 0; i-- {
		c := st.codes[i]
		if c.Email == email && c.Source == source && c.ActiveAt(now) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("discount code: %w", repository.ErrNotFound)
}

func (v *view) InsertDiscountCode(ctx context.Context, c *model.DiscountCode) error {
	st, done := v.begin()
	defer done()

	if c.Status == "" {
		c.Status = model.CodeActive
	}
	for _, existing := range st.codes {
		if existing.Code == c.Code {
			return fmt.Errorf("discount code: %w", repository.ErrDuplicate)
		}
		if c.Source == model.SourcePoints && c.Status == model.CodeActive &&
			existing.Email == c.Email && existing.Source == model.SourcePoints && existing.Status == model.CodeActive {
			return fmt.Errorf("discount code: %w", repository.ErrDuplicate)
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = v.store.now()
	}
	c.ID = st.nextCodeID
	st.nextCodeID++
	st.codes = append(st.codes, *c)
	return nil
}

func (v *view) ListDiscountCodes(ctx context.Context, email string) ([]model.DiscountCode, error) {
	st, done := v.begin()
	defer done()

	out := []model.DiscountCode{}
	for i := len(st.codes) - 1; i >= 0; i-- {
		if st.codes[i].Email == email {
			out = append(out, st.codes[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (v *view) ListGiftCardRedemptions(ctx context.Context, email string) ([]model.GiftCardRedemption, error) {
	st, done := v.begin()
	defer done()

	out := []model.GiftCardRedemption{}
	for k, r := range st.giftCards {
		if k.email == email {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RedeemedAt.Equal(out[j].RedeemedAt) {
			return out[i].TierName < out[j].TierName
		}
		return out[i].RedeemedAt.Before(out[j].RedeemedAt)
	})
	return out, nil
}

func (v *view) InsertGiftCardRedemption(ctx context.Context, r *model.GiftCardRedemption) error {
	st, done := v.begin()
	defer done()

	key := pairKey{r.Email, r.TierName}
	if _, ok := st.giftCards[key]; ok {
		return fmt.Errorf("gift card redemption: %w", repository.ErrDuplicate)
	}
	if r.RedeemedAt.IsZero() {
		r.RedeemedAt = v.store.now()
	}
	st.giftCards[key] = *r
	return nil
}

func (v *view) ListMissions(ctx context.Context) ([]model.Mission, error) {
	st, done := v.begin()
	defer done()

	out := []model.Mission{}
	for _, m := range st.missions {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points == out[j].Points {
			return out[i].ID < out[j].ID
		}
		return out[i].Points < out[j].Points
	})
	return out, nil
}

func (v *view) GetMission(ctx context.Context, id int64) (*model.Mission, error) {
	st, done := v.begin()
	defer done()

	for _, m := range st.missions {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("mission: %w", repository.ErrNotFound)
}

func (v *view) ListUserMissions(ctx context.Context, email string) ([]model.UserMission, error) {
	st, done := v.begin()
	defer done()

	out := []model.UserMission{}
	for k, um := range st.userMissions {
		if k.email == email {
			out = append(out, um)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MissionID < out[j].MissionID })
	return out, nil
}

func (v *view) GetUserMission(ctx context.Context, email string, missionID int64) (*model.UserMission, error) {
	st, done := v.begin()
	defer done()

	um, ok := st.userMissions[missionKey{email, missionID}]
	if !ok {
		return nil, fmt.Errorf("user mission: %w", repository.ErrNotFound)
	}
	return &um, nil
}

func (v *view) CreateUserMission(ctx context.Context, um *model.UserMission) error {
	st, done := v.begin()
	defer done()

	key := missionKey{um.Email, um.MissionID}
	if _, ok := st.userMissions[key]; ok {
		return fmt.Errorf("user mission: %w", repository.ErrDuplicate)
	}
	um.Version = 0
	um.UpdatedAt = v.store.now()
	st.userMissions[key] = *um
	return nil
}

func (v *view) UpdateUserMission(ctx context.Context, um *model.UserMission) error {
	st, done := v.begin()
	defer done()

	key := missionKey{um.Email, um.MissionID}
	current, ok := st.userMissions[key]
	if !ok || current.Version != um.Version {
		return fmt.Errorf("user mission: %w", repository.ErrStale)
	}
	um.Version++
	um.UpdatedAt = v.store.now()
	st.userMissions[key] = *um
	return nil
}

func (v *view) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	st, done := v.begin()
	defer done()

	if _, ok := st.tokens[t.Token]; ok {
		return fmt.Errorf("reset token: %w", repository.ErrDuplicate)
	}
	t.Used = false
	t.CreatedAt = v.store.now()
	st.tokens[t.Token] = *t
	return nil
}

func (v *view) GetResetToken(ctx context.Context, token string) (*model.PasswordResetToken, error) {
	st, done := v.begin()
	defer done()

	t, ok := st.tokens[token]
	if !ok {
		return nil, fmt.Errorf("reset token: %w", repository.ErrNotFound)
	}
	return &t, nil
}

func (v *view) ConsumeResetToken(ctx context.Context, token string) error {
	st, done := v.begin()
	defer done()

	t, ok := st.tokens[token]
	if !ok || t.Used {
		return fmt.Errorf("reset token: %w", repository.ErrStale)
	}
	t.Used = true
	st.tokens[token] = t
	return nil
}
