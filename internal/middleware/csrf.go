package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/apperr"
	"github.com/iliyamo/storefront/internal/utils"
)

const (
	CSRFFormField = "_csrf"
	CSRFHeader    = "X-CSRF-Token"
)

// CSRF issues one token per session and requires it on every request that
// is not GET, HEAD, OPTIONS or TRACE. A mismatch stops the request before
// the handler runs.
func CSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := SessionFrom(c)
			if s == nil {
				return apperr.Fault(echo.ErrInternalServerError, "csrf without session")
			}
			if s.CSRFToken == "" {
				tok, err := utils.NewToken()
				if err != nil {
					return apperr.Fault(err, "generate csrf token")
				}
				s.SetCSRFToken(tok)
			}

			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				return next(c)
			}

			sent := c.Request().Header.Get(CSRFHeader)
			if sent == "" {
				sent = c.FormValue(CSRFFormField)
			}
			if !utils.TokensEqual(sent, s.CSRFToken) {
				return apperr.Csrf()
			}
			return next(c)
		}
	}
}
