// Package service implements the loyalty program: the points ledger, tier
// bonuses, discount code issuance, accounts, missions and statistics.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/loyalty"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

// externalTimeout bounds calls made after the caller's context may be gone.
const externalTimeout = 10 * time.Second

// Commerce is the subset of the commerce platform used by the services.
type Commerce interface {
	CreateCustomer(ctx context.Context, in shopify.CustomerInput) (*shopify.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	FindCustomer(ctx context.Context, email string) (*shopify.Customer, error)
	CreateDiscount(ctx context.Context, in shopify.DiscountInput) (*shopify.Discount, error)
	CustomerOrders(ctx context.Context, email string) ([]shopify.Order, error)
}

// Audience manages newsletter contacts.
type Audience interface {
	AddContact(ctx context.Context, email string) (bool, error)
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Store    repository.Store
	Commerce Commerce
	Mailer   email.Sender
	Audience Audience // nil disables newsletter sign-up

	Tiers  *loyalty.TierTable
	Policy loyalty.Policy
	Codes  *loyalty.CodeGenerator

	Loyalty config.LoyaltyConfig
	Auth    config.AuthConfig
	Email   config.EmailConfig

	Logger *zap.Logger
	Now    func() time.Time
}

// Services groups the program's use cases.
type Services struct {
	Ledger     *LedgerService
	Redemption *RedemptionService
	Accounts   *AccountService
	Missions   *MissionService
	Stats      *StatsService
	Newsletter *NewsletterService
}

// New wires the services over d, filling in defaults for optional fields.
func New(d Deps) *Services {
	if d.Tiers == nil {
		d.Tiers = loyalty.MustTierTable(loyalty.DefaultTiers())
	}
	if d.Policy == (loyalty.Policy{}) {
		d.Policy = loyalty.DefaultPolicy()
	}
	if d.Codes == nil {
		d.Codes = loyalty.NewCodeGenerator(nil)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Mailer == nil {
		d.Mailer = email.Discard{Logger: d.Logger}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Auth.MinPasswordLength == 0 {
		d.Auth.MinPasswordLength = 6
	}
	if d.Auth.ResetTokenTTL == 0 {
		d.Auth.ResetTokenTTL = time.Hour
	}

	deps := &d
	ledger := &LedgerService{deps: deps}
	missions := &MissionService{deps: deps, ledger: ledger}
	return &Services{
		Ledger:     ledger,
		Redemption: &RedemptionService{deps: deps, ledger: ledger},
		Accounts:   &AccountService{deps: deps},
		Missions:   missions,
		Stats:      &StatsService{deps: deps},
		Newsletter: &NewsletterService{deps: deps, missions: missions},
	}
}

// track records the duration of an operation; status follows *err at return.
func track(operation string, err *error) func() {
	start := time.Now()
	return func() {
		status := "success"
		if *err != nil {
			status = "failure"
		}
		metrics.RecordOperationDuration(operation, status, time.Since(start).Seconds())
	}
}

// notify renders and sends a best-effort email. Failures are logged and
// counted, never returned.
func (d *Deps) notify(ctx context.Context, t email.Template, to string, data any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), externalTimeout)
	defer cancel()

	msg, err := email.Render(t, to, data)
	if err == nil {
		err = d.Mailer.Send(ctx, msg)
	}
	if err != nil {
		metrics.RecordNotificationFailure(string(t))
		d.Logger.Warn("email notification failed",
			zap.String("template", string(t)),
			zap.String("email", to),
			zap.Error(err))
	}
}

// normalizeEmail trims and lowercases an address.
func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func requireEmail(s string) (string, error) {
	e := normalizeEmail(s)
	if e == "" || !strings.Contains(e, "@") {
		return "", validationError("a valid email is required")
	}
	return e, nil
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}
