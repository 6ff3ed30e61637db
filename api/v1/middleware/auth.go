package middleware

import (
	"errors"
	"strings"

	"go_seoindex/internal/auth"
	"go_seoindex/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by AuthRequired
const (
	ContextOperator = "operator"
	ContextScope    = "scope"
	contextClaims   = "claims"
)

// AuthRequired validates the operator bearer token
func AuthRequired(tm *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := tm.Parse(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired("token expired"))
			} else {
				httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			}
			c.Abort()
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Set(ContextScope, claims.Scope)
		c.Set(contextClaims, claims)
		c.Next()
	}
}

// WriteRequired rejects tokens without the write scope
func WriteRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := c.Get(contextClaims)
		if !ok || !claims.(*auth.Claims).CanWrite() {
			httpx.FailErr(c, httpx.ErrForbidden("write scope required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
