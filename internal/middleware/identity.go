package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the role claim stored by JWTAuth.
func Role(c echo.Context) (string, bool) {
	r, ok := c.Get(ctxRole).(string)
	return r, ok && r != ""
}

// identityKey is the user part of rate limit keys; "anon" when nobody is
// authenticated.
func identityKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
