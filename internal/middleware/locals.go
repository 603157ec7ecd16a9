package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/model"
)

const ctxLocals = "locals"

// Locals is the read-only view state every template receives.
type Locals struct {
	IsAuthenticated bool
	CSRFToken       string
	User            *model.User

	session *model.Session
}

// Flash pops the messages of kind. Templates call it while rendering, so a
// message is consumed only by a page that is actually shown.
func (l Locals) Flash(kind string) []string {
	if l.session == nil {
		return nil
	}
	return l.session.PopFlashes(kind)
}

// ExposeLocals publishes Locals for the renderer.
func ExposeLocals() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(ctxLocals, buildLocals(c))
			return next(c)
		}
	}
}

// LocalsFrom returns the request's locals. Outside the chain (for example
// when the terminal error handler renders a page for a request that failed
// early) they are derived from whatever is on the context.
func LocalsFrom(c echo.Context) Locals {
	if l, ok := c.Get(ctxLocals).(Locals); ok {
		return l
	}
	return buildLocals(c)
}

func buildLocals(c echo.Context) Locals {
	l := Locals{session: SessionFrom(c)}
	if l.session != nil {
		l.CSRFToken = l.session.CSRFToken
	}
	if u, ok := CurrentUser(c); ok {
		l.IsAuthenticated = true
		l.User = &u
	}
	return l
}
