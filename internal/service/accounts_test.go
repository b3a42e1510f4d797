package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/model"
)

func signup(t *testing.T, env *testEnv, address, password string) *SignupResult {
	t.Helper()
	res, err := env.svc.Accounts.Signup(context.Background(), SignupInput{
		Email:     address,
		Password:  password,
		FirstName: "Marie",
		LastName:  "Curie",
	})
	require.NoError(t, err)
	return res
}

func TestSignupThenSignin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := signup(t, env, "Marie@Example.com", "radium88")
	assert.Equal(t, "marie@example.com", res.Customer.Email)
	assert.NotEmpty(t, res.Customer.CommerceID)
	assert.NotEqual(t, "radium88", res.Customer.PasswordHash)

	c, err := env.svc.Accounts.Signin(ctx, "marie@example.com", "radium88")
	require.NoError(t, err)
	assert.Equal(t, res.Customer.CommerceID, c.CommerceID)

	a := env.account(t, "marie@example.com")
	assert.Equal(t, res.Customer.CommerceID, a.CommerceCustomerID)
	assert.Zero(t, a.PointsBalance)
}

func TestSigninFailuresAreGeneric(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signup(t, env, "marie@example.com", "radium88")

	_, wrongPassword := env.svc.Accounts.Signin(ctx, "marie@example.com", "polonium")
	_, unknownEmail := env.svc.Accounts.Signin(ctx, "pierre@example.com", "radium88")

	assertKind(t, wrongPassword, KindUnauthorized)
	assertKind(t, unknownEmail, KindUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, "email or password incorrect", wrongPassword.Error())
}

func TestSignupIssuesWelcomeCode(t *testing.T) {
	env := newTestEnv(t)

	res := signup(t, env, "marie@example.com", "radium88")
	require.NotNil(t, res.WelcomeCode)
	assert.True(t, strings.HasPrefix(res.WelcomeCode.Code, "BIENVENUEMARIE"), res.WelcomeCode.Code)
	assert.Equal(t, model.SourceWelcome, res.WelcomeCode.Source)
	assert.Equal(t, model.ValuePercentage, res.WelcomeCode.ValueType)
	assert.Zero(t, res.WelcomeCode.PointsUsed)
	assert.Equal(t, env.clock.Now().AddDate(0, 0, 30), res.WelcomeCode.ExpiresAt)

	msg := env.mailer.last(t)
	assert.Equal(t, email.TemplateWelcome, msg.Template)
	assert.Contains(t, msg.HTML, res.WelcomeCode.Code)
}

func TestSignupSurvivesWelcomeFailure(t *testing.T) {
	env := newTestEnv(t)
	env.commerce.createDiscountErr = errors.New("price rules unavailable")

	res := signup(t, env, "marie@example.com", "radium88")
	assert.Nil(t, res.WelcomeCode)

	_, err := env.svc.Accounts.Signin(context.Background(), "marie@example.com", "radium88")
	assert.NoError(t, err)
}

func TestSignupRejectsDuplicateBeforeCallingPlatform(t *testing.T) {
	env := newTestEnv(t)
	signup(t, env, "marie@example.com", "radium88")
	env.commerce.createCustomerErr = errors.New("must not be called")

	_, err := env.svc.Accounts.Signup(context.Background(), SignupInput{Email: "marie@example.com", Password: "another1"})
	assertKind(t, err, KindConflict)
}

func TestSignupPlatformDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "marie@example.com", 0, 0)

	_, err := env.svc.Accounts.Signup(context.Background(), SignupInput{Email: "marie@example.com", Password: "radium88"})
	assertKind(t, err, KindConflict)
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Accounts.Signup(ctx, SignupInput{Email: "marie@example.com", Password: "short"})
	assertKind(t, err, KindValidation)

	_, err = env.svc.Accounts.Signup(ctx, SignupInput{Email: "", Password: "radium88"})
	assertKind(t, err, KindValidation)
}

func TestSignupCompensatesPlatformCustomer(t *testing.T) {
	env := newTestEnv(t)
	svc := New(Deps{
		Store:    failingTxStore{env.store},
		Commerce: env.commerce,
		Mailer:   env.mailer,
		Now:      env.clock.Now,
	})

	_, err := svc.Accounts.Signup(context.Background(), SignupInput{Email: "marie@example.com", Password: "radium88"})
	assertKind(t, err, KindInternal)

	require.Len(t, env.commerce.deleted, 1)
	found, err := env.commerce.FindCustomer(context.Background(), "marie@example.com")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signup(t, env, "marie@example.com", "radium88")

	require.NoError(t, env.svc.Accounts.RequestReset(ctx, "marie@example.com"))
	msg := env.mailer.last(t)
	assert.Equal(t, email.TemplatePasswordReset, msg.Template)
	token := resetTokenFrom(t, msg)

	require.NoError(t, env.svc.Accounts.ResetPassword(ctx, token, "polonium84"))

	_, err := env.svc.Accounts.Signin(ctx, "marie@example.com", "polonium84")
	require.NoError(t, err)
	_, err = env.svc.Accounts.Signin(ctx, "marie@example.com", "radium88")
	assertKind(t, err, KindUnauthorized)

	err = env.svc.Accounts.ResetPassword(ctx, token, "another99")
	assertKind(t, err, KindValidation)
	assert.Equal(t, "reset token already used", err.Error())
}

func TestPasswordResetExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signup(t, env, "marie@example.com", "radium88")

	require.NoError(t, env.svc.Accounts.RequestReset(ctx, "marie@example.com"))
	token := resetTokenFrom(t, env.mailer.last(t))

	env.clock.Advance(time.Hour)
	err := env.svc.Accounts.ResetPassword(ctx, token, "polonium84")
	assertKind(t, err, KindValidation)
	assert.Equal(t, "reset token expired", err.Error())

	_, err = env.svc.Accounts.Signin(ctx, "marie@example.com", "radium88")
	assert.NoError(t, err)
}

func TestPasswordResetInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.Accounts.ResetPassword(context.Background(), "deadbeef", "polonium84")
	assertKind(t, err, KindValidation)
	assert.Equal(t, "invalid reset token", err.Error())
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.svc.Accounts.RequestReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, env.mailer.sent)
}

func TestRequestResetSwallowsEmailFailure(t *testing.T) {
	env := newTestEnv(t)
	signup(t, env, "marie@example.com", "radium88")
	env.mailer.err = errors.New("provider down")

	assert.NoError(t, env.svc.Accounts.RequestReset(context.Background(), "marie@example.com"))
}
