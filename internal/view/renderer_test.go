package view

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type form struct {
	Email   string
	Invalid map[string]bool
}

func TestRendererParsesEveryPage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	for _, p := range []string{"index", "login", "signup", "reset", "new-password", "403", "404", "500", "error"} {
		assert.True(t, r.Has(p), p)
	}
	assert.False(t, r.Has("layout"))
}

func TestRenderLoginKeepsEmailAndEscapes(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/login", nil), httptest.NewRecorder())

	var buf bytes.Buffer
	err = r.Render(&buf, "login", form{Email: `a"<b>@x.com`, Invalid: map[string]bool{"password": true}}, c)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<title>Login</title>")
	assert.Contains(t, out, `value="a&#34;&lt;b&gt;@x.com"`)
	assert.Contains(t, out, `class="invalid" type="password"`)
	assert.Contains(t, out, `href="/signup"`)
}

func TestRenderUnknownPage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Error(t, r.Render(&bytes.Buffer{}, "nope", nil, c))
}
