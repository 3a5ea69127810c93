package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/theatre-seat-reservation/internal/config"
	"github.com/iliyamo/theatre-seat-reservation/internal/logger"
	"github.com/iliyamo/theatre-seat-reservation/internal/utils"
)

const testSecret = "test-secret"

func whoAmI(c echo.Context) error {
	uid, _ := UserID(c)
	role, _ := Role(c)
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "role": role})
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoAmI, JWTAuth(testSecret))

	t.Run("valid token exposes numeric user id", func(t *testing.T) {
		at, err := utils.NewAccessToken(testSecret, 42, "CUSTOMER", 5)
		require.NoError(t, err)
		rec := serve(e, http.MethodGet, "/me", at.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user_id":42,"role":"CUSTOMER"}`, rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		rec := serve(e, http.MethodGet, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing bearer token")
	})

	t.Run("wrong secret", func(t *testing.T) {
		at, err := utils.NewAccessToken("other", 42, "CUSTOMER", 5)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", at.Token).Code)
	})

	t.Run("expired", func(t *testing.T) {
		at, err := utils.NewAccessToken(testSecret, 42, "CUSTOMER", -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", at.Token).Code)
	})

	t.Run("other algorithm", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": "42", "role": "ADMIN", "exp": time.Now().Add(time.Minute).Unix(),
		})
		raw, err := tok.SignedString([]byte(testSecret))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", raw).Code)
	})

	t.Run("non numeric subject", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice", "role": "ADMIN", "exp": time.Now().Add(time.Minute).Unix(),
		})
		raw, err := tok.SignedString([]byte(testSecret))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", raw).Code)
	})
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.POST("/halls", whoAmI, JWTAuth(testSecret), RequireRole("ADMIN"))

	customer, err := utils.NewAccessToken(testSecret, 1, "CUSTOMER", 5)
	require.NoError(t, err)
	admin, err := utils.NewAccessToken(testSecret, 2, "ADMIN", 5)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodPost, "/halls", customer.Token).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/halls", admin.Token).Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/reservations")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:anon:route:POST /v1/reservations", buildRateKey(cfg, c))

	c.Set(ctxUserID, uint64(42))
	assert.Equal(t, "rl:ip:10.0.0.1:user:42:route:POST /v1/reservations", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:42", buildRateKey(cfg, c))
}

func TestCacheKey_DistinguishesConcretePaths(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/v1/performances/1/seats", nil)
	b := httptest.NewRequest(http.MethodGet, "/v1/performances/2/seats", nil)
	assert.NotEqual(t, cacheKey("cache", a), cacheKey("cache", b))

	q1 := httptest.NewRequest(http.MethodGet, "/v1/plays?search=ham&ordering=title", nil)
	q2 := httptest.NewRequest(http.MethodGet, "/v1/plays?ordering=title&search=ham", nil)
	assert.Equal(t, cacheKey("cache", q1), cacheKey("cache", q2), "query order does not matter")

	assert.True(t, strings.HasPrefix(cacheKey("cache", a), pathPrefix("cache", "/v1/performances/1/seats")+":"))
}

func TestExpandPath(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/v1/performances/12", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("12")

	assert.Equal(t, "/v1/performances/12/seats", expandPath(c, "/v1/performances/:id/seats"))
	assert.Equal(t, "/v1/performances", expandPath(c, "/v1/performances"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`[{"row":1,"seat":1}]`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `[{"row":1,"seat":1}]`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestDisabledCacheAndLimiterPassThrough(t *testing.T) {
	log, _ := test.NewNullLogger()
	rc := NewResponseCache(config.CacheConfig{Enabled: true}, nil, log)
	require.NoError(t, rc.InvalidatePath(context.Background(), "/v1/halls"))

	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		rc.Middleware(), NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, log))
	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	e := echo.New()
	var seen string
	e.GET("/x", func(c echo.Context) error {
		seen = logger.CorrelationIDFromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	}, RequestLogger(log))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "req-1", seen)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "request completed", hook.LastEntry().Message)
	assert.Equal(t, http.StatusNoContent, hook.LastEntry().Data["status"])

	rec = serve(e, http.MethodGet, "/x", "")
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
}
