package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/metrics"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/repository"
	"github.com/kkkkikiki/loyalty/internal/shopify"
)

const (
	resetTokenBytes = 32
	badCredentials  = "email or password incorrect"
)

// AccountService handles signup, signin and password reset.
type AccountService struct {
	deps *Deps
}

// SignupInput is a new customer's registration.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SignupResult is the created customer and, when issuance succeeded, the
// welcome code.
type SignupResult struct {
	Customer    *model.Customer     `json:"customer"`
	WelcomeCode *model.DiscountCode `json:"welcome_code,omitempty"`
}

// Signup creates the customer on the commerce platform and locally. When the
// local write fails the platform customer is deleted again.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (res *SignupResult, err error) {
	defer track("signup", &err)()

	address, err := requireEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < s.deps.Auth.MinPasswordLength {
		return nil, validationError("password must be at least %d characters", s.deps.Auth.MinPasswordLength)
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	_, err = s.deps.Store.GetCustomer(ctx, address)
	switch {
	case err == nil:
		return nil, conflictError("an account already exists with this email")
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internalError("failed to check existing account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost())
	if err != nil {
		return nil, internalError("failed to hash password", err)
	}

	remote, err := s.deps.Commerce.CreateCustomer(ctx, shopify.CustomerInput{
		Email:     address,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  in.Password,
	})
	if errors.Is(err, shopify.ErrCustomerExists) {
		return nil, conflictError("an account already exists with this email")
	}
	if err != nil {
		return nil, upstreamError("failed to create customer", err)
	}

	customer := &model.Customer{
		Email:        address,
		CommerceID:   remote.ID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hash),
	}
	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.CreateCustomer(ctx, customer); err != nil {
			return err
		}
		err := q.CreateAccount(ctx, &model.LoyaltyAccount{
			Email:              address,
			CommerceCustomerID: remote.ID,
			FirstName:          in.FirstName,
			LastName:           in.LastName,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			// Orders placed before signup already opened the account.
			return nil
		}
		return err
	})
	if err != nil {
		s.compensate(remote.ID, address, err)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflictError("an account already exists with this email")
		}
		return nil, internalError("failed to create account", err)
	}

	s.deps.Logger.Info("customer signed up", zap.String("email", address), zap.String("customer_id", remote.ID))
	res = &SignupResult{Customer: customer}
	res.WelcomeCode = s.issueWelcomeCode(ctx, customer)
	return res, nil
}

// compensate deletes the platform customer created by a failed signup.
func (s *AccountService) compensate(customerID, address string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), externalTimeout)
	defer cancel()

	if err := s.deps.Commerce.DeleteCustomer(ctx, customerID); err != nil {
		s.deps.Logger.Error("signup rollback failed, platform customer left behind",
			zap.String("email", address),
			zap.String("customer_id", customerID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.deps.Logger.Warn("signup rolled back", zap.String("email", address), zap.Error(cause))
}

// issueWelcomeCode creates the percentage welcome code and emails it. Every
// failure is logged and leaves the signup intact.
func (s *AccountService) issueWelcomeCode(ctx context.Context, c *model.Customer) *model.DiscountCode {
	dc := s.deps.welcomeCode(ctx, c.Email, c.FirstName, c.CommerceID)
	if dc == nil {
		return nil
	}
	s.deps.notify(ctx, email.TemplateWelcome, c.Email, email.WelcomeData{
		FirstName: c.FirstName,
		Code:      dc.Code,
		Percent:   s.deps.Loyalty.WelcomePercent,
		ShopURL:   s.deps.Email.ShopURL,
	})
	return dc
}

// welcomeCode registers a single-use percentage code on the platform and
// records it locally. An empty commerceID leaves the code unscoped. It returns
// nil when welcome codes are disabled or any step fails.
func (d *Deps) welcomeCode(ctx context.Context, address, firstName, commerceID string) *model.DiscountCode {
	percent := d.Loyalty.WelcomePercent
	if percent <= 0 {
		return nil
	}
	logger := d.Logger.With(zap.String("email", address))

	code, err := d.Codes.Welcome(d.Loyalty.WelcomePrefix, firstName)
	if err != nil {
		logger.Warn("welcome code generation failed", zap.Error(err))
		return nil
	}
	now := d.Now()
	expiresAt := now.AddDate(0, 0, validityDays(d.Loyalty.WelcomeValidityDays, 30))
	value := decimal.NewFromInt(percent)

	discount, err := d.Commerce.CreateDiscount(ctx, shopify.DiscountInput{
		Title:           fmt.Sprintf("Bienvenue %s", address),
		Code:            code,
		ValueType:       shopify.ValuePercentage,
		Value:           value,
		CustomerID:      commerceID,
		StartsAt:        now,
		EndsAt:          expiresAt,
		UsageLimit:      1,
		OncePerCustomer: true,
	})
	if err != nil {
		logger.Warn("welcome discount creation failed", zap.Error(err))
		return nil
	}

	dc := &model.DiscountCode{
		Email:          address,
		Code:           code,
		Source:         model.SourceWelcome,
		ValueType:      model.ValuePercentage,
		DiscountAmount: value,
		PriceRuleID:    discount.PriceRuleID,
		DiscountCodeID: discount.DiscountCodeID,
		Status:         model.CodeActive,
		ExpiresAt:      expiresAt,
	}
	if err := d.Store.InsertDiscountCode(ctx, dc); err != nil {
		logger.Error("orphaned external discount",
			zap.String("code", code),
			zap.String("price_rule_id", discount.PriceRuleID),
			zap.Error(err))
		metrics.RecordOrphanedDiscount()
		return nil
	}
	return dc
}

// Signin checks credentials. Unknown emails and wrong passwords fail the same
// way.
func (s *AccountService) Signin(ctx context.Context, address, password string) (c *model.Customer, err error) {
	defer track("signin", &err)()

	address = normalizeEmail(address)
	if address == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	c, err = s.deps.Store.GetCustomer(ctx, address)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, unauthorizedError(badCredentials)
	case err != nil:
		return nil, internalError("failed to load customer", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, unauthorizedError(badCredentials)
	}
	return c, nil
}

// RequestReset issues a reset token and emails the link. It succeeds for
// unknown emails too so accounts cannot be enumerated; a failed email is
// logged and not reported.
func (s *AccountService) RequestReset(ctx context.Context, address string) (err error) {
	defer track("request_reset", &err)()

	address, err = requireEmail(address)
	if err != nil {
		return err
	}

	c, err := s.deps.Store.GetCustomer(ctx, address)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.deps.Logger.Info("password reset requested for unknown email")
		return nil
	case err != nil:
		return internalError("failed to load customer", err)
	}

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return internalError("failed to generate reset token", err)
	}
	token := &model.PasswordResetToken{
		Token:     hex.EncodeToString(raw),
		Email:     address,
		ExpiresAt: s.deps.Now().Add(s.deps.Auth.ResetTokenTTL),
	}
	if err := s.deps.Store.CreateResetToken(ctx, token); err != nil {
		return internalError("failed to store reset token", err)
	}

	s.deps.notify(ctx, email.TemplatePasswordReset, address, email.ResetData{
		FirstName: c.FirstName,
		ResetURL:  resetLink(s.deps.Email.ResetURL, token.Token),
	})
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// consumed and the password replaced in one transaction.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) (err error) {
	defer track("reset_password", &err)()

	if token == "" {
		return validationError("reset token is required")
	}
	if len(password) < s.deps.Auth.MinPasswordLength {
		return validationError("password must be at least %d characters", s.deps.Auth.MinPasswordLength)
	}

	t, err := s.deps.Store.GetResetToken(ctx, token)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return validationError("invalid reset token")
	case err != nil:
		return internalError("failed to load reset token", err)
	}
	if t.Used {
		return validationError("reset token already used")
	}
	if t.Expired(s.deps.Now()) {
		return validationError("reset token expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost())
	if err != nil {
		return internalError("failed to hash password", err)
	}

	err = s.deps.Store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.ConsumeResetToken(ctx, token); err != nil {
			return err
		}
		return q.UpdatePassword(ctx, t.Email, string(hash))
	})
	switch {
	case errors.Is(err, repository.ErrStale):
		return validationError("reset token already used")
	case err != nil:
		return internalError("failed to reset password", err)
	}

	s.deps.Logger.Info("password reset", zap.String("email", t.Email))
	return nil
}

func (s *AccountService) bcryptCost() int {
	if c := s.deps.Auth.BcryptCost; c >= bcrypt.MinCost && c <= bcrypt.MaxCost {
		return c
	}
	return bcrypt.DefaultCost
}

func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
