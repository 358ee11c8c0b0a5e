package main

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/payroll_backend/appctx"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
)

// authMiddleware validates the bearer token and hangs the caller identity
// off the request context. The application claim names the payment point a
// gateway caller may act for.
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("token")
		}
		raw = strings.TrimPrefix(raw, "Bearer ")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		token, err := utils.JwtValidate(raw)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		ctx := c.Request.Context()
		ctx = appctx.Set(ctx, appctx.ContextKeyToken, raw)
		ctx = appctx.Set(ctx, appctx.ContextKeyUserId, claims.UserId)
		ctx = appctx.Set(ctx, appctx.ContextKeyUsername, claims.Username)
		ctx = appctx.Set(ctx, appctx.ContextKeyApplication, claims.Application)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
