package http

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Headers carrying per-user exchange credentials.
const (
	HeaderUserID    = "X-User-Id"
	HeaderAPIKey    = "X-Api-Key"
	HeaderAPISecret = "X-Api-Secret"
)

// ClientKey identifies the caller for rate limiting: the user header when
// present, the client IP otherwise.
func ClientKey(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(HeaderUserID)); id != "" {
		return "user:" + id
	}
	return "ip:" + c.RealIP()
}
