package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/repository/memory"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

type fakeCommerce struct {
	mu        sync.Mutex
	nextID    int64
	customers map[string]*shopify.Customer
	discounts []shopify.DiscountInput
	deleted   []string
	orders    map[string][]shopify.Order

	createCustomerErr error
	createDiscountErr error
	ordersErr         error
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		nextID:    100,
		customers: make(map[string]*shopify.Customer),
		orders:    make(map[string][]shopify.Order),
	}
}

func (f *fakeCommerce) CreateCustomer(ctx context.Context, in shopify.CustomerInput) (*shopify.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createCustomerErr != nil {
		return nil, f.createCustomerErr
	}
	if _, ok := f.customers[in.Email]; ok {
		return nil, shopify.ErrCustomerExists
	}
	f.nextID++
	c := &shopify.Customer{ID: fmt.Sprint(f.nextID), Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
	f.customers[in.Email] = c
	return c, nil
}

func (f *fakeCommerce) DeleteCustomer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	for k, c := range f.customers {
		if c.ID == id {
			delete(f.customers, k)
		}
	}
	return nil
}

func (f *fakeCommerce) FindCustomer(ctx context.Context, address string) (*shopify.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[address], nil
}

func (f *fakeCommerce) CreateDiscount(ctx context.Context, in shopify.DiscountInput) (*shopify.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDiscountErr != nil {
		return nil, f.createDiscountErr
	}
	f.discounts = append(f.discounts, in)
	n := len(f.discounts)
	return &shopify.Discount{PriceRuleID: fmt.Sprint(1000 + n), DiscountCodeID: fmt.Sprint(2000 + n), Code: in.Code}, nil
}

func (f *fakeCommerce) CustomerOrders(ctx context.Context, address string) ([]shopify.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders[address], nil
}

func (f *fakeCommerce) discountCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.discounts)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last(t *testing.T) email.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store    *memory.Store
	commerce *fakeCommerce
	mailer   *fakeMailer
	clock    *testClock
	svc      *Services
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	env := &testEnv{
		store:    memory.New(memory.WithClock(clock.Now)),
		commerce: newFakeCommerce(),
		mailer:   &fakeMailer{},
		clock:    clock,
	}
	deps := Deps{
		Store:    env.store,
		Commerce: env.commerce,
		Mailer:   env.mailer,
		Loyalty: config.LoyaltyConfig{
			CodePrefix:           "ALOHA",
			CodeValidityDays:     90,
			GiftCardPrefix:       "GIFT",
			GiftCardValidityDays: 365,
			WelcomePrefix:        "BIENVENUE",
			WelcomePercent:       10,
			WelcomeValidityDays:  30,
		},
		Auth:  config.AuthConfig{BcryptCost: bcrypt.MinCost, MinPasswordLength: 6, ResetTokenTTL: time.Hour},
		Email: config.EmailConfig{ResetURL: "https://shop.example.com/reset-password", ShopURL: "https://shop.example.com"},
		Now:   clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.svc = New(deps)
	return env
}

// seedAccount creates a customer with a commerce id and a loyalty account
// holding earned-spent points.
func (e *testEnv) seedAccount(t *testing.T, address string, earned, spent int64) {
	t.Helper()
	ctx := context.Background()
	c, err := e.commerce.CreateCustomer(ctx, shopify.CustomerInput{Email: address, FirstName: "Ana"})
	require.NoError(t, err)
	require.NoError(t, e.store.CreateAccount(ctx, &model.LoyaltyAccount{
		Email:              address,
		CommerceCustomerID: c.ID,
		FirstName:          "Ana",
		PointsBalance:      earned - spent,
		TotalPointsEarned:  earned,
		TotalPointsSpent:   spent,
	}))
}

func (e *testEnv) account(t *testing.T, address string) *model.LoyaltyAccount {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), address)
	require.NoError(t, err)
	require.True(t, a.Consistent(), "ledger invariant broken: %+v", a)
	return a
}

func (e *testEnv) transactions(t *testing.T, address string, typ model.TransactionType) []model.PointsTransaction {
	t.Helper()
	all, err := e.store.ListTransactions(context.Background(), address, 0)
	require.NoError(t, err)
	var out []model.PointsTransaction
	for _, tx := range all {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}

func assertKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), "error: %v", err)
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

func resetTokenFrom(t *testing.T, msg email.Message) string {
	t.Helper()
	m := tokenPattern.FindStringSubmatch(msg.HTML)
	require.Len(t, m, 2, "no token in %q", msg.HTML)
	return m[1]
}

// failingTxStore fails every unit of work.
type failingTxStore struct {
	*memory.Store
}

func (s failingTxStore) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return errors.New("connection reset")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(&InsufficientBalanceError{Available: 1, Requested: 2}))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", conflictError("x"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "not_found", KindNotFound.String())
}
