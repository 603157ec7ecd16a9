package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/apperr"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	out := scrape(t, m)
	assert.Contains(t, out, `shop_http_requests_total{method="GET",route="/ping",status="200"} 3`)
	assert.Contains(t, out, `shop_http_request_duration_seconds_count{method="GET",route="/ping"} 3`)
}

func TestAuthCounter(t *testing.T) {
	m := New()
	m.Auth("login", "ok")
	m.Auth("login", "ok")
	m.Auth("login", "auth")

	out := scrape(t, m)
	assert.Contains(t, out, `shop_auth_events_total{op="login",result="ok"} 2`)
	assert.Contains(t, out, `shop_auth_events_total{op="login",result="auth"} 1`)

	var nilM *Metrics
	assert.NotPanics(t, func() { nilM.Auth("login", "ok") })
}

func TestMiddlewareLabelsErrorStatus(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.POST("/login", func(c echo.Context) error { return apperr.Csrf() })
	e.POST("/signup", func(c echo.Context) error { return apperr.Validation("email", "bad") })
	e.POST("/boom", func(c echo.Context) error { return apperr.Fault(errors.New("db down"), "lookup") })
	e.GET("/teapot", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/login"},
		{http.MethodPost, "/signup"},
		{http.MethodPost, "/boom"},
		{http.MethodGet, "/teapot"},
		{http.MethodGet, "/nowhere"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	out := scrape(t, m)
	assert.Contains(t, out, `shop_http_requests_total{method="POST",route="/login",status="403"} 1`)
	assert.Contains(t, out, `shop_http_requests_total{method="POST",route="/signup",status="422"} 1`)
	assert.Contains(t, out, `shop_http_requests_total{method="POST",route="/boom",status="500"} 1`)
	assert.Contains(t, out, `shop_http_requests_total{method="GET",route="/teapot",status="418"} 1`)
	assert.Contains(t, out, `status="404"`)
}

func TestRegistryHoldsCollectors(t *testing.T) {
	m := New()
	m.Auth("signup", "ok")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shop_auth_events_total"])
	assert.True(t, names["go_goroutines"])

	// vectors without observations are not gathered
	assert.False(t, names["shop_http_requests_total"])
}
