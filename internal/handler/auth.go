package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/storefront/internal/apperr"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/service"
)

const requestTimeout = 5 * time.Second

// AuthHandler serves the login, signup, logout and password reset pages.
type AuthHandler struct {
	Auth *service.AuthService
	Log  zerolog.Logger
}

func NewAuthHandler(auth *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Log: log}
}

// The login, signup and new password forms bind straight into the service
// inputs, which carry the `form` and `validate` tags.

type resetForm struct {
	Email string `form:"email"`
}

// AuthPage is the data of the login and signup templates. Passwords are
// never echoed back.
type AuthPage struct {
	Email   string
	Invalid map[string]bool
}

// NewPasswordPage is the data of the new password template.
type NewPasswordPage struct {
	UserID        string
	PasswordToken string
	Invalid       map[string]bool
}

func (h *AuthHandler) GetLogin(c echo.Context) error {
	return c.Render(http.StatusOK, "login", AuthPage{})
}

func (h *AuthHandler) GetSignup(c echo.Context) error {
	return c.Render(http.StatusOK, "signup", AuthPage{})
}

func (h *AuthHandler) GetReset(c echo.Context) error {
	return c.Render(http.StatusOK, "reset", nil)
}

// PostLogin signs the session in. The session id is rotated first so an id
// handed out before login is worthless afterwards.
func (h *AuthHandler) PostLogin(c echo.Context) error {
	var f service.LoginInput
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.Login(ctx, f)
	if err != nil {
		if ae, ok := formError(err); ok {
			return h.rerender(c, "login", ae, AuthPage{Email: f.Email, Invalid: invalid(ae)})
		}
		return err
	}

	if err := middleware.RotateSession(c); err != nil {
		return err
	}
	middleware.SessionFrom(c).SignIn(u.ID)
	h.Log.Info().Str("user_id", u.ID).Msg("auth: login")
	return c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) PostSignup(c echo.Context) error {
	var f service.SignupInput
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.Signup(ctx, f)
	if err != nil {
		if ae, ok := formError(err); ok {
			return h.rerender(c, "signup", ae, AuthPage{Email: f.Email, Invalid: invalid(ae)})
		}
		return err
	}
	h.Log.Info().Str("user_id", u.ID).Msg("auth: signup")
	return c.Redirect(http.StatusFound, "/login")
}

// PostLogout ends the session. Logging out twice is not an error.
func (h *AuthHandler) PostLogout(c echo.Context) error {
	if err := middleware.DestroySession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/")
}

// PostReset answers every address the same way.
func (h *AuthHandler) PostReset(c echo.Context) error {
	var f resetForm
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.RequestPasswordReset(ctx, f.Email); err != nil {
		return err
	}
	middleware.SessionFrom(c).AddFlash(model.FlashInfo, service.MsgResetRequested)
	return c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) GetNewPassword(c echo.Context) error {
	token := c.Param("token")

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.ValidateResetToken(ctx, token)
	if err != nil {
		return h.tokenError(c, err)
	}
	return c.Render(http.StatusOK, "new-password", NewPasswordPage{UserID: u.ID, PasswordToken: token})
}

func (h *AuthHandler) PostNewPassword(c echo.Context) error {
	var f service.NewPasswordInput
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	err := h.Auth.CompletePasswordReset(ctx, f)
	if err != nil {
		if ae, ok := formError(err); ok {
			return h.rerender(c, "new-password", ae, NewPasswordPage{
				UserID:        f.UserID,
				PasswordToken: f.PasswordToken,
				Invalid:       invalid(ae),
			})
		}
		return h.tokenError(c, err)
	}

	h.Log.Info().Str("user_id", f.UserID).Msg("auth: password reset")
	middleware.SessionFrom(c).AddFlash(model.FlashInfo, service.MsgPasswordUpdated)
	return c.Redirect(http.StatusFound, "/login")
}

// tokenError sends the user back to the start of the reset flow for token
// errors and passes everything else on.
func (h *AuthHandler) tokenError(c echo.Context, err error) error {
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindToken {
		return err
	}
	middleware.SessionFrom(c).AddFlash(model.FlashError, ae.Message)
	return c.Redirect(http.StatusFound, "/reset")
}

func (h *AuthHandler) rerender(c echo.Context, page string, ae *apperr.Error, data any) error {
	middleware.SessionFrom(c).AddFlash(model.FlashError, ae.Message)
	return c.Render(ae.Status(), page, data)
}

// formError reports whether err is answered by re-rendering the form.
func formError(err error) (*apperr.Error, bool) {
	ae, ok := apperr.As(err)
	if !ok {
		return nil, false
	}
	return ae, ae.Kind == apperr.KindValidation || ae.Kind == apperr.KindAuth
}

func invalid(ae *apperr.Error) map[string]bool {
	if ae.Field == "" {
		return nil
	}
	return map[string]bool{ae.Field: true}
}
