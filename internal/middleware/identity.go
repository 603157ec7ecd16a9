package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

const ctxUser = "currentUser"

// UserFinder looks users up by id.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

// Identity resolves the session's user id to a user. A missing user or a
// failing store leaves the request anonymous; neither blocks it.
func Identity(users UserFinder, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := SessionFrom(c)
			if s == nil || !s.LoggedIn || s.UserID == "" {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
			u, err := users.FindByID(ctx, s.UserID)
			cancel()
			switch {
			case err == nil:
				c.Set(ctxUser, u)
			case errors.Is(err, repository.ErrUserNotFound):
				log.Debug().Str("user_id", s.UserID).Msg("identity: session references a missing user")
			default:
				log.Warn().Err(err).Str("user_id", s.UserID).Msg("identity: user lookup failed")
			}
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}
