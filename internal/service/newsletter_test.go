package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/model"
)

type fakeAudience struct {
	mu       sync.Mutex
	contacts map[string]bool
	err      error
}

func (a *fakeAudience) AddContact(ctx context.Context, address string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	if a.contacts[address] {
		return false, nil
	}
	a.contacts[address] = true
	return true, nil
}

func TestNewsletterSubscribe(t *testing.T) {
	audience := &fakeAudience{contacts: map[string]bool{}}
	env := newTestEnv(t, func(d *Deps) { d.Audience = audience })
	ctx := context.Background()
	env.seedAccount(t, "ana@example.com", 0, 0)

	already, err := env.svc.Newsletter.Subscribe(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.False(t, already)
	msg := env.mailer.last(t)
	assert.Equal(t, email.TemplateNewsletter, msg.Template)
	assert.Equal(t, int64(5), env.account(t, "ana@example.com").PointsBalance)

	listing, err := env.svc.Redemption.ListCodes(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, listing.Codes, 1)
	welcome := listing.Codes[0]
	assert.Equal(t, model.SourceWelcome, welcome.Source)
	assert.Contains(t, msg.HTML, welcome.Code)

	already, err = env.svc.Newsletter.Subscribe(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, int64(5), env.account(t, "ana@example.com").PointsBalance)
}

func TestNewsletterWithoutAccountEarnsNothing(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Audience = &fakeAudience{contacts: map[string]bool{}} })

	_, err := env.svc.Newsletter.Subscribe(context.Background(), "visitor@example.com")
	require.NoError(t, err)
	_, err = env.store.GetAccount(context.Background(), "visitor@example.com")
	assert.Error(t, err)

	// Visitors still get a code, not scoped to any platform customer.
	assert.Contains(t, env.mailer.last(t).HTML, "BIENVENUE")
	require.NotEmpty(t, env.commerce.discounts)
	assert.Empty(t, env.commerce.discounts[len(env.commerce.discounts)-1].CustomerID)
}

func TestNewsletterWithoutWelcomeCode(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Audience = &fakeAudience{contacts: map[string]bool{}} })
	env.commerce.createDiscountErr = errors.New("price rules unavailable")

	_, err := env.svc.Newsletter.Subscribe(context.Background(), "visitor@example.com")
	require.NoError(t, err)
	msg := env.mailer.last(t)
	assert.Equal(t, email.TemplateNewsletter, msg.Template)
	assert.NotContains(t, msg.HTML, "BIENVENUE")
}

func TestNewsletterErrors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Newsletter.Subscribe(context.Background(), "ana@example.com")
	assertKind(t, err, KindInternal)

	env = newTestEnv(t, func(d *Deps) { d.Audience = &fakeAudience{err: errors.New("429")} })
	_, err = env.svc.Newsletter.Subscribe(context.Background(), "ana@example.com")
	assertKind(t, err, KindUpstream)
}
