package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fateforge/server/cache"
	"github.com/fateforge/server/config"
	"github.com/gin-gonic/gin"
)

const AccountIDKey = "account_id"

// Auth validates the Bearer JWT and checks the login cache entry the
// token was issued with.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check login still valid in cache. The "login:" prefix keeps
		// auth tokens out of the game-session key space. The cached
		// value is the account id the token was issued for, so a
		// mismatch means the entry belongs to a different login.
		loginKey := "login:" + tokenStr
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		stored, err := c.Get(cacheCtx, loginKey)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login expired"})
			return
		}
		if stored != strconv.FormatInt(claims.AccountID, 10) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login expired"})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}
