package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Home renders the shop landing page.
func Home(c echo.Context) error {
	return c.Render(http.StatusOK, "index", nil)
}

// Get500 is where faults are redirected to.
func Get500(c echo.Context) error {
	return c.Render(http.StatusInternalServerError, "500", nil)
}
