package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/storefront/internal/apperr"
	"github.com/iliyamo/storefront/internal/model"
)

// Page names rendered by the error handler.
const (
	PageForbidden = "403"
	PageNotFound  = "404"
	PageError     = "error"
	FaultPath     = "/500"
	ResetPath     = "/reset"
)

// ErrorPage is the data passed to error templates.
type ErrorPage struct {
	Title   string
	Status  int
	Message string
}

// ErrorHandler is the terminal handler for everything a handler or a
// middleware returns. Expected outcomes are answered in place; faults are
// logged and redirected to the generic failure page.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		req := c.Request()
		if c.Response().Committed {
			// the request logger answers errors itself and passes them on
			log.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).
				Msg("error after response was committed")
			return
		}

		if ae, ok := apperr.As(err); ok {
			switch ae.Kind {
			case apperr.KindCsrf:
				log.Warn().Str("method", req.Method).Str("path", req.URL.Path).Str("ip", c.RealIP()).
					Msg("csrf token rejected")
				render(c, log, http.StatusForbidden, PageForbidden, ErrorPage{
					Title: "Forbidden", Status: http.StatusForbidden,
					Message: "Your form has expired. Please go back, reload the page and try again.",
				})
				return
			case apperr.KindToken:
				if s := SessionFrom(c); s != nil {
					s.AddFlash(model.FlashError, ae.Message)
				}
				redirect(c, log, ResetPath)
				return
			case apperr.KindValidation, apperr.KindAuth:
				render(c, log, ae.Status(), PageError, ErrorPage{
					Title: "Error", Status: ae.Status(), Message: ae.Message,
				})
				return
			}
			fault(c, log, err)
			return
		}

		if he, ok := err.(*echo.HTTPError); ok && he.Code < http.StatusInternalServerError {
			if he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed {
				render(c, log, he.Code, PageNotFound, ErrorPage{Title: "Page Not Found", Status: he.Code})
				return
			}
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			render(c, log, he.Code, PageError, ErrorPage{Title: "Error", Status: he.Code, Message: msg})
			return
		}

		fault(c, log, err)
	}
}

func fault(c echo.Context, log zerolog.Logger, err error) {
	req := c.Request()
	log.Error().Stack().Err(err).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("unhandled error")
	redirect(c, log, FaultPath)
}

func redirect(c echo.Context, log zerolog.Logger, to string) {
	if err := c.Redirect(http.StatusFound, to); err != nil {
		log.Error().Err(err).Msg("error handler: redirect failed")
	}
}

func render(c echo.Context, log zerolog.Logger, status int, page string, data ErrorPage) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.Render(status, page, data)
	}
	if err != nil {
		log.Error().Err(err).Str("page", page).Msg("error handler: render failed")
		_ = c.String(status, http.StatusText(status))
	}
}
