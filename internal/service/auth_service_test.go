package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/apperr"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
)

type fakeMailer struct {
	sent []queue.PasswordResetMail
	err  error
}

func (f *fakeMailer) PublishPasswordReset(_ context.Context, m queue.PasswordResetMail) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T) (*AuthService, *repository.MemoryUserRepo, *fakeMailer, *clock) {
	t.Helper()
	users := repository.NewMemoryUserRepo()
	mail := &fakeMailer{}
	clk := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := NewAuthService(users, mail, nil, Options{
		BcryptCost:    4,
		ResetTokenTTL: time.Hour,
		BaseURL:       "http://shop.test/",
		Metrics:       metrics.New(),
		Now:           clk.now,
	})
	return svc, users, mail, clk
}

func requireKind(t *testing.T, err error, kind apperr.Kind, msg string) *apperr.Error {
	t.Helper()
	ae, ok := apperr.As(err)
	require.True(t, ok, "want *apperr.Error, got %v", err)
	assert.Equal(t, kind, ae.Kind)
	if msg != "" {
		assert.Equal(t, msg, ae.Message)
	}
	return ae
}

func TestSignupThenDuplicate(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Signup(ctx, SignupInput{Email: " A@X.com ", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.NotEqual(t, "pass1", u.PasswordHash)

	stored, err := users.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "pass1"))

	_, err = svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass2", ConfirmPassword: "pass2"})
	ae := requireKind(t, err, apperr.KindValidation, MsgEmailExists)
	assert.Equal(t, "email", ae.Field)
}

func TestSignupRuleOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupInput{Email: "taken@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)

	cases := []struct {
		name  string
		in    SignupInput
		msg   string
		field string
	}{
		{"bad email wins", SignupInput{Email: "nope", Password: "x", ConfirmPassword: "y"}, MsgSignupEmail, "email"},
		{"exists before password", SignupInput{Email: "taken@x.com", Password: "x", ConfirmPassword: "y"}, MsgEmailExists, "email"},
		{"short password", SignupInput{Email: "b@x.com", Password: "abcd", ConfirmPassword: "abcd"}, MsgSignupPassword, "password"},
		{"symbols rejected", SignupInput{Email: "b@x.com", Password: "abc!de", ConfirmPassword: "abc!de"}, MsgSignupPassword, "password"},
		{"mismatch", SignupInput{Email: "b@x.com", Password: "pass1", ConfirmPassword: "pass2"}, MsgPasswordsDiffer, "confirmPassword"},
		{"longer than bcrypt hashes", SignupInput{Email: "b@x.com", Password: strings.Repeat("a1", 40), ConfirmPassword: strings.Repeat("a1", 40)}, MsgPasswordTooLong, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tc.in)
			ae := requireKind(t, err, apperr.KindValidation, tc.msg)
			assert.Equal(t, tc.field, ae.Field)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)

	u, err := svc.Login(ctx, LoginInput{Email: "A@x.com", Password: "pass1"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "wrong1"})
	requireKind(t, err, apperr.KindAuth, MsgInvalidLogin)

	_, err = svc.Login(ctx, LoginInput{Email: "unknown@x.com", Password: "pass1"})
	requireKind(t, err, apperr.KindAuth, MsgInvalidLogin)

	_, err = svc.Login(ctx, LoginInput{Email: "not-an-email", Password: "pass1"})
	requireKind(t, err, apperr.KindValidation, MsgLoginEmail)

	_, err = svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "no"})
	requireKind(t, err, apperr.KindValidation, MsgLoginPassword)

	_, err = svc.Login(ctx, LoginInput{Email: "a@x.com", Password: strings.Repeat("a1", 40)})
	requireKind(t, err, apperr.KindValidation, MsgLoginPassword)
}

func TestRequestPasswordResetKnownAndUnknown(t *testing.T) {
	svc, users, mail, clk := newTestService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "unknown@x.com"))
	require.NoError(t, svc.RequestPasswordReset(ctx, "garbage"))
	assert.Empty(t, mail.sent)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	require.Len(t, mail.sent, 1)
	m := mail.sent[0]
	assert.Equal(t, "a@x.com", m.To)
	assert.Equal(t, clk.t.Add(time.Hour).Format(time.RFC3339), m.ExpiresAt)
	require.True(t, strings.HasPrefix(m.ResetURL, "http://shop.test/reset/"))

	token := strings.TrimPrefix(m.ResetURL, "http://shop.test/reset/")
	u, err := users.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, token, u.ResetToken)
	require.NotNil(t, u.ResetTokenExpiresAt)
	assert.Equal(t, clk.t.Add(time.Hour), *u.ResetTokenExpiresAt)
}

func TestResetMailCarriesConfiguredExpiry(t *testing.T) {
	mail := &fakeMailer{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := NewAuthService(repository.NewMemoryUserRepo(), mail, nil, Options{
		BcryptCost:    4,
		ResetTokenTTL: 15 * time.Minute,
		Now:           func() time.Time { return now },
	})
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "2026-01-02T03:19:05Z", mail.sent[0].ExpiresAt)
	assert.Contains(t, mail.sent[0].Body(), "expires at 2026-01-02T03:19:05Z")
}

func TestRequestPasswordResetPublishFailureIsFault(t *testing.T) {
	svc, _, mail, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)

	mail.err = errors.New("broker down")
	err = svc.RequestPasswordReset(ctx, "a@x.com")
	assert.Equal(t, apperr.KindFault, apperr.KindOf(err))
}

func issueToken(t *testing.T, svc *AuthService, mail *fakeMailer, email string) string {
	t.Helper()
	require.NoError(t, svc.RequestPasswordReset(context.Background(), email))
	last := mail.sent[len(mail.sent)-1]
	return last.ResetURL[strings.LastIndex(last.ResetURL, "/")+1:]
}

func TestCompletePasswordReset(t *testing.T) {
	svc, users, mail, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)
	token := issueToken(t, svc, mail, "a@x.com")

	owner, err := svc.ValidateResetToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner.ID)

	err = svc.CompletePasswordReset(ctx, NewPasswordInput{PasswordToken: token, Password: "bad!", UserID: u.ID})
	requireKind(t, err, apperr.KindValidation, MsgSignupPassword)

	err = svc.CompletePasswordReset(ctx, NewPasswordInput{PasswordToken: token, Password: strings.Repeat("a1", 40), UserID: u.ID})
	requireKind(t, err, apperr.KindValidation, MsgPasswordTooLong)

	err = svc.CompletePasswordReset(ctx, NewPasswordInput{PasswordToken: token, Password: "newpass1", UserID: "999"})
	requireKind(t, err, apperr.KindToken, MsgResetTokenBad)

	require.NoError(t, svc.CompletePasswordReset(ctx, NewPasswordInput{PasswordToken: token, Password: "newpass1", UserID: u.ID}))

	stored, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "newpass1"))
	assert.Empty(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiresAt)

	// replay
	err = svc.CompletePasswordReset(ctx, NewPasswordInput{PasswordToken: token, Password: "another1", UserID: u.ID})
	requireKind(t, err, apperr.KindToken, MsgResetTokenBad)

	_, err = svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "newpass1"})
	assert.NoError(t, err)
}

func TestCompletePasswordResetExpired(t *testing.T) {
	svc, users, mail, clk := newTestService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	require.NoError(t, err)
	token := issueToken(t, svc, mail, "a@x.com")

	clk.t = clk.t.Add(time.Hour + time.Second)
	err = svc.CompletePasswordReset(ctx, NewPasswordInput{PasswordToken: token, Password: "newpass1", UserID: u.ID})
	requireKind(t, err, apperr.KindToken, MsgResetTokenBad)

	stored, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "pass1"))
}

type brokenStore struct {
	*repository.MemoryUserRepo
}

func (brokenStore) FindByEmail(context.Context, string) (model.User, error) {
	return model.User{}, errors.New("connection refused")
}

func TestStoreFailuresAreFaults(t *testing.T) {
	svc := NewAuthService(brokenStore{repository.NewMemoryUserRepo()}, &fakeMailer{}, nil, Options{BcryptCost: 4})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "pass1", ConfirmPassword: "pass1"})
	assert.Equal(t, apperr.KindFault, apperr.KindOf(err))
	_, err = svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "pass1"})
	assert.Equal(t, apperr.KindFault, apperr.KindOf(err))
	assert.Equal(t, apperr.KindFault, apperr.KindOf(svc.RequestPasswordReset(ctx, "a@x.com")))
}
