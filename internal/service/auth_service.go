// Package service implements the auth pipeline: signup, login and the
// password reset flow. Handlers own sessions and HTTP; this package owns the
// rules and returns apperr kinds for every outcome that is not a success.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/apperr"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
	"github.com/iliyamo/storefront/internal/validator"
)

// User-facing messages.
const (
	MsgSignupEmail     = "Please enter a valid email."
	MsgEmailExists     = "E-mail exists already. Please pick a different one!"
	MsgSignupPassword  = "Please enter a password with only numbers and text and at least 5 characters."
	MsgPasswordTooLong = "Please enter a password with at most 72 characters."
	MsgPasswordsDiffer = "Passwords have to match!"
	MsgLoginEmail      = "Please enter a valid email address."
	MsgLoginPassword   = "Password has to be valid."
	MsgInvalidLogin    = "Invalid credentials."
	MsgResetRequested  = "Check your email for a link to reset your password."
	MsgResetTokenBad   = "Password reset link is invalid or has expired."
	MsgPasswordUpdated = "Your password has been updated. Please log in."
	resetMailSubject   = "Password reset"
)

// UserStore is the credential store as the auth pipeline sees it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByResetToken(ctx context.Context, token string, now time.Time) (model.User, error)
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, id, token string, now time.Time, passwordHash string) error
}

// Mailer dispatches reset mails.
type Mailer interface {
	PublishPasswordReset(ctx context.Context, m queue.PasswordResetMail) error
}

// Options tunes an AuthService. Zero values fall back to defaults.
type Options struct {
	BcryptCost    int
	ResetTokenTTL time.Duration
	BaseURL       string
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

type AuthService struct {
	users    UserStore
	mail     Mailer
	validate *validator.Validator
	cost     int
	resetTTL time.Duration
	baseURL  string
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewAuthService(users UserStore, mail Mailer, v *validator.Validator, opts Options) *AuthService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if v == nil {
		v = validator.New()
	}
	return &AuthService{
		users:    users,
		mail:     mail,
		validate: v,
		cost:     opts.BcryptCost,
		resetTTL: opts.ResetTokenTTL,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// SignupInput is the submitted signup form. Passwords are capped at 72
// bytes, the most bcrypt will hash; alphanum keeps runes and bytes equal.
type SignupInput struct {
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"min=5,max=72,alphanum"`
	ConfirmPassword string `form:"confirmPassword" validate:"eqfield=Password"`
}

// LoginInput is the submitted login form.
type LoginInput struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"min=5,max=72,alphanum"`
}

// NewPasswordInput is the submitted new password form. UserID and
// PasswordToken echo the hidden fields of the page.
type NewPasswordInput struct {
	Password      string `form:"password" validate:"min=5,max=72,alphanum"`
	UserID        string `form:"userId"`
	PasswordToken string `form:"passwordToken"`
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a user. Rules are checked in order and the first failure is
// returned as a validation error naming the field.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (model.User, error) {
	u, err := s.signup(ctx, in)
	s.record("signup", err)
	return u, err
}

func (s *AuthService) signup(ctx context.Context, in SignupInput) (model.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Password = strings.TrimSpace(in.Password)
	in.ConfirmPassword = strings.TrimSpace(in.ConfirmPassword)

	failed, err := s.check(in)
	if err != nil {
		return model.User{}, err
	}
	if _, bad := failed["email"]; bad {
		return model.User{}, apperr.Validation("email", MsgSignupEmail)
	}
	_, err = s.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return model.User{}, apperr.Validation("email", MsgEmailExists)
	case !errors.Is(err, repository.ErrUserNotFound):
		return model.User{}, apperr.Fault(err, "lookup email")
	}
	if err := passwordError(failed); err != nil {
		return model.User{}, err
	}
	if _, bad := failed["confirmPassword"]; bad {
		return model.User{}, apperr.Validation("confirmPassword", MsgPasswordsDiffer)
	}

	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return model.User{}, apperr.Fault(err, "hash password")
	}
	now := s.now().UTC()
	u := model.User{Email: in.Email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, apperr.Validation("email", MsgEmailExists)
		}
		return model.User{}, apperr.Fault(err, "create user")
	}
	return u, nil
}

// Login checks credentials and returns the matching user. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (model.User, error) {
	u, err := s.login(ctx, in)
	s.record("login", err)
	return u, err
}

func (s *AuthService) login(ctx context.Context, in LoginInput) (model.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Password = strings.TrimSpace(in.Password)

	failed, err := s.check(in)
	if err != nil {
		return model.User{}, err
	}
	if _, bad := failed["email"]; bad {
		return model.User{}, apperr.Validation("email", MsgLoginEmail)
	}
	if _, bad := failed["password"]; bad {
		return model.User{}, apperr.Validation("password", MsgLoginPassword)
	}

	u, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, apperr.Auth(MsgInvalidLogin)
		}
		return model.User{}, apperr.Fault(err, "lookup email")
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		return model.User{}, apperr.Auth(MsgInvalidLogin)
	}
	return u, nil
}

// RequestPasswordReset stores a fresh token on the matching user and
// publishes the reset mail. Unknown or malformed addresses succeed silently
// so the response never reveals whether an account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	err := s.requestPasswordReset(ctx, email)
	s.record("reset_request", err)
	return err
}

func (s *AuthService) requestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if s.validate.Var(email, "required,email") != nil {
		return nil
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return apperr.Fault(err, "lookup email")
	}

	token, err := utils.NewToken()
	if err != nil {
		return apperr.Fault(err, "generate reset token")
	}
	now := s.now().UTC()
	expires := now.Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, u.ID, token, expires); err != nil {
		return apperr.Fault(err, "store reset token")
	}

	m := queue.PasswordResetMail{
		To:          u.Email,
		Subject:     resetMailSubject,
		ResetURL:    s.baseURL + "/reset/" + token,
		RequestedAt: now.Format(time.RFC3339),
		ExpiresAt:   expires.Format(time.RFC3339),
	}
	if err := s.mail.PublishPasswordReset(ctx, m); err != nil {
		return apperr.Fault(err, "dispatch reset mail")
	}
	return nil
}

// ValidateResetToken returns the owner of a live token.
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, apperr.Token(MsgResetTokenBad)
	}
	u, err := s.users.FindByResetToken(ctx, token, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, apperr.Token(MsgResetTokenBad)
		}
		return model.User{}, apperr.Fault(err, "lookup reset token")
	}
	return u, nil
}

// CompletePasswordReset replaces the password of in.UserID when the token is
// live and belongs to that user. The token is consumed atomically so a replay
// always fails.
func (s *AuthService) CompletePasswordReset(ctx context.Context, in NewPasswordInput) error {
	err := s.completePasswordReset(ctx, in)
	s.record("reset_complete", err)
	return err
}

func (s *AuthService) completePasswordReset(ctx context.Context, in NewPasswordInput) error {
	u, err := s.ValidateResetToken(ctx, in.PasswordToken)
	if err != nil {
		return err
	}
	if in.UserID == "" || u.ID != in.UserID {
		return apperr.Token(MsgResetTokenBad)
	}

	in.Password = strings.TrimSpace(in.Password)
	failed, err := s.check(in)
	if err != nil {
		return err
	}
	if err := passwordError(failed); err != nil {
		return err
	}
	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return apperr.Fault(err, "hash password")
	}

	if err := s.users.ConsumeResetToken(ctx, in.UserID, in.PasswordToken, s.now().UTC(), hash); err != nil {
		if errors.Is(err, repository.ErrResetTokenInvalid) || errors.Is(err, repository.ErrUserNotFound) {
			return apperr.Token(MsgResetTokenBad)
		}
		return apperr.Fault(err, "consume reset token")
	}
	return nil
}

// check runs the struct rules of in and returns the failed form fields.
func (s *AuthService) check(in any) (map[string]string, error) {
	err := s.validate.Struct(in)
	if err == nil {
		return nil, nil
	}
	failed := validator.Failed(err)
	if failed == nil {
		return nil, apperr.Fault(err, "validate form")
	}
	return failed, nil
}

func passwordError(failed map[string]string) error {
	switch tag, bad := failed["password"]; {
	case !bad:
		return nil
	case tag == "max":
		return apperr.Validation("password", MsgPasswordTooLong)
	default:
		return apperr.Validation("password", MsgSignupPassword)
	}
}

func (s *AuthService) record(op string, err error) {
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	s.metrics.Auth(op, result)
}
