package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fateforge/server/cache"
	"github.com/fateforge/server/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authRig struct {
	router *gin.Engine
	cache  cache.Cache
	sec    config.SecurityConfig
}

func newAuthRig(t *testing.T) *authRig {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, err := cache.NewCache(cache.CacheConfig{})
	require.NoError(t, err)

	rig := &authRig{
		cache: c,
		sec:   config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour},
	}
	rig.router = gin.New()
	rig.router.Use(Auth(rig.sec, c))
	rig.router.GET("/protected", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"account_id": GetAccountID(ctx)})
	})
	return rig
}

func (rig *authRig) get(header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	rig.router.ServeHTTP(w, req)
	return w
}

func (rig *authRig) login(t *testing.T, accountID int64) string {
	t.Helper()
	token, err := GenerateToken(accountID, rig.sec.JWTSecret, rig.sec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, rig.cache.Set(context.Background(), "login:"+token, "42", time.Hour))
	return token
}

func TestAuth_RejectsBadCredentials(t *testing.T) {
	rig := newAuthRig(t)
	for name, header := range map[string]string{
		"no header":    "",
		"wrong scheme": "Token abc123",
		"not a jwt":    "Bearer notavalidtoken",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, rig.get(header).Code)
		})
	}
}

func TestAuth_LoginExpired(t *testing.T) {
	rig := newAuthRig(t)

	// A valid JWT whose login entry was never cached (or already
	// evicted) is treated as logged out.
	token, err := GenerateToken(42, rig.sec.JWTSecret, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, rig.get("Bearer "+token).Code)
}

func TestAuth_LoginAccountMismatch(t *testing.T) {
	rig := newAuthRig(t)

	// Cache entry pointing at a different account than the token's
	// claims must not authenticate.
	token, err := GenerateToken(42, rig.sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, rig.cache.Set(context.Background(), "login:"+token, "7", time.Hour))

	assert.Equal(t, http.StatusUnauthorized, rig.get("Bearer "+token).Code)
}

func TestAuth_ValidLogin(t *testing.T) {
	rig := newAuthRig(t)
	token := rig.login(t, 42)

	w := rig.get("Bearer " + token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account_id": 42}`, w.Body.String())
}

func TestGetAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, int64(0), GetAccountID(c), "unauthenticated context")

	c.Set(AccountIDKey, int64(99))
	assert.Equal(t, int64(99), GetAccountID(c))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(TraceID(), Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecovery_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/ok", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_DoesNotAlterResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(TraceID(), Logger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
