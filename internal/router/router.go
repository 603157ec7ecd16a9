// Package router assembles the middleware pipeline and registers the routes.
package router

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/middleware"
)

// BodyLimit caps request bodies, uploads included.
const BodyLimit = "5M"

// Deps is everything the router wires together.
type Deps struct {
	Log      zerolog.Logger
	Renderer echo.Renderer
	Metrics  *metrics.Metrics

	Sessions      middleware.SessionStore
	Users         middleware.UserFinder
	CookieName    string
	SecureCookies bool
	Now           func() time.Time

	Redis     *redis.Client
	RateLimit config.RateLimitConfig

	Auth   *handler.AuthHandler
	Checks map[string]handler.Check

	PublicDir string
	ImagesDir string
}

// New builds the Echo instance. The middleware order is fixed here and
// nowhere else:
//
//	recover, request id, request log, secure headers, gzip, body limit,
//	metrics, public assets, then for page requests
//	session, identity, csrf, locals.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = d.Renderer
	e.HTTPErrorHandler = middleware.ErrorHandler(d.Log)
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	ambient := []echo.MiddlewareFunc{
		echomw.Recover(),
		echomw.RequestID(),
		middleware.RequestLogger(d.Log),
		echomw.SecureWithConfig(echomw.SecureConfig{
			XSSProtection:      "1; mode=block",
			ContentTypeNosniff: "nosniff",
			XFrameOptions:      "SAMEORIGIN",
			ReferrerPolicy:     "no-referrer",
			HSTSMaxAge:         hstsMaxAge(d.SecureCookies),
		}),
		echomw.Gzip(),
		echomw.BodyLimit(BodyLimit),
		d.Metrics.Middleware(),
	}
	if d.PublicDir != "" {
		ambient = append(ambient, echomw.StaticWithConfig(echomw.StaticConfig{Root: d.PublicDir}))
	}
	e.Use(ambient...)

	pages := Chain(skipInfra,
		middleware.Session(middleware.SessionConfig{
			Store:      d.Sessions,
			CookieName: d.CookieName,
			Secure:     d.SecureCookies,
			Log:        d.Log,
			Now:        d.Now,
		}),
		middleware.Identity(d.Users, d.Log),
		middleware.CSRF(),
		middleware.ExposeLocals(),
	)
	e.Use(pages)

	RegisterRoutes(e, d)
	RegisterAuth(e, d.Auth, middleware.RateLimit(d.RateLimit, d.Redis, d.Log))
	return e
}

// RegisterRoutes registers the shop, error and infrastructure routes.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/", handler.Home)
	e.GET("/500", handler.Get500)
	e.GET("/healthz", handler.Health(d.Checks))
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	if d.ImagesDir != "" {
		e.Static("/images", d.ImagesDir)
	}
}

// RegisterAuth registers the auth pages. Form posts that guess credentials
// or trigger mail go through the rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
	e.GET("/login", a.GetLogin)
	e.GET("/signup", a.GetSignup)
	e.POST("/login", a.PostLogin, limit)
	e.POST("/signup", a.PostSignup, limit)
	e.POST("/logout", a.PostLogout)
	e.GET("/reset", a.GetReset)
	e.POST("/reset", a.PostReset, limit)
	e.GET("/reset/:token", a.GetNewPassword)
	e.POST("/new-password", a.PostNewPassword, limit)
}

// Chain composes mws into one middleware, applied in the given order unless
// skip matches the request.
func Chain(skip echomw.Skipper, mws ...echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := next
		for i := len(mws) - 1; i >= 0; i-- {
			wrapped = mws[i](wrapped)
		}
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			return wrapped(c)
		}
	}
}

// skipInfra keeps health checks, metrics scrapes and images out of the session
// store.
func skipInfra(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/healthz" || p == "/metrics" || strings.HasPrefix(p, "/images/")
}

func hstsMaxAge(secure bool) int {
	if secure {
		return 31536000
	}
	return 0
}
